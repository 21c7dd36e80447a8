package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const inboxTracerName = "agentmux-inbox"

// TraceInboxDelivery creates a span for one inbox delivery attempt.
func TraceInboxDelivery(ctx context.Context, messageID, receiverID string) (context.Context, trace.Span) {
	ctx, span := Tracer(inboxTracerName).Start(ctx, "inbox.deliver",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("message_id", messageID),
		attribute.String("receiver_id", receiverID),
	)
	return ctx, span
}

// TraceInboxDeliveryResult records the outcome of a delivery attempt on its span.
func TraceInboxDeliveryResult(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
