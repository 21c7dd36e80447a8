package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/logreader"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/tracing"
)

// ErrDeliveryFailed wraps a failed input send; the message has been marked
// FAILED by the time this is returned.
var ErrDeliveryFailed = errors.New("inbox delivery failed")

const defaultTailLines = 25

// ProviderSource resolves the live provider behind a terminal.
// *provider.Manager implements it.
type ProviderSource interface {
	Get(ctx context.Context, terminalID string) (provider.Provider, error)
}

// InputSender types text into a terminal. *terminal.Service implements it.
type InputSender interface {
	SendInput(ctx context.Context, id, text string) error
}

// Scheduler drains inbox queues. It reacts to terminal.log.updated events:
// on each event it loads the recipient's oldest PENDING message and delivers
// it only when the recipient's log tail shows the provider's idle pattern
// and the computed status confirms IDLE or COMPLETED. Messages skipped this
// round stay PENDING and are retried on the next log change.
//
// At most one delivery per message holds under concurrent events because
// advancing a message out of PENDING is a single conditional update; the
// loser of the race stops silently.
type Scheduler struct {
	store     *Store
	providers ProviderSource
	sender    InputSender
	reader    *logreader.Reader
	eventBus  bus.EventBus
	logger    *logger.Logger
	tailLines int

	mu      sync.Mutex
	running bool
	sub     bus.Subscription
}

// NewScheduler creates a scheduler. tailLines bounds the scrollback window
// inspected by the status double-check; values <= 0 fall back to 25.
func NewScheduler(store *Store, providers ProviderSource, sender InputSender, reader *logreader.Reader, eventBus bus.EventBus, log *logger.Logger, tailLines int) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}
	return &Scheduler{
		store:     store,
		providers: providers,
		sender:    sender,
		reader:    reader,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "inbox-scheduler")),
		tailLines: tailLines,
	}
}

// Start subscribes to log change events. A running scheduler ignores
// further calls.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	sub, err := s.eventBus.QueueSubscribe(events.BuildLogUpdatedWildcardSubject(), "inbox-scheduler", s.handleLogUpdated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to log change events: %w", err)
	}
	s.sub = sub
	s.running = true

	s.logger.Info("inbox scheduler started", zap.Int("tail_lines", s.tailLines))
	return nil
}

// Stop cancels the subscription. In-flight deliveries finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Debug("failed to unsubscribe from log change events", zap.Error(err))
		}
		s.sub = nil
	}

	s.logger.Info("inbox scheduler stopped")
}

// handleLogUpdated is the bus callback. Errors are logged and returned to
// the bus layer; they never stop the subscription.
func (s *Scheduler) handleLogUpdated(ctx context.Context, event *bus.Event) error {
	id, _ := event.Data["terminal_id"].(string)
	if id == "" {
		return nil
	}

	if err := s.deliverNext(ctx, id); err != nil {
		s.logger.Error("inbox delivery error",
			zap.String("terminal_id", id),
			zap.Error(err))
		return err
	}
	return nil
}

// deliverNext runs the delivery pipeline for one recipient. Every gate that
// does not pass leaves the queue untouched so a later event retries.
func (s *Scheduler) deliverNext(ctx context.Context, id string) error {
	msg, err := s.store.GetOldestPending(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load pending messages for terminal %s: %w", id, err)
	}
	if msg == nil {
		return nil
	}

	ctx, span := tracing.TraceInboxDelivery(ctx, msg.ID, id)
	defer span.End()

	outcome, err := s.deliverMessage(ctx, id, msg)
	tracing.TraceInboxDeliveryResult(span, outcome, err)
	return err
}

// deliverMessage runs the readiness gates and the send for one message.
// The returned outcome is recorded on the delivery span.
func (s *Scheduler) deliverMessage(ctx context.Context, id string, msg *Message) (string, error) {
	p, err := s.providers.Get(ctx, id)
	if err != nil {
		return "failed", fmt.Errorf("no provider for terminal %s: %w", id, err)
	}

	if _, idle := s.reader.SyncAndCheck(id, p.IdleLogPattern()); !idle {
		s.logger.Debug("recipient log tail not idle, delivery deferred",
			zap.String("terminal_id", id))
		return "deferred", nil
	}

	status, err := p.Status(ctx, s.tailLines)
	if err != nil {
		return "failed", fmt.Errorf("failed to compute status for terminal %s: %w", id, err)
	}
	if status != provider.StatusIdle && status != provider.StatusCompleted {
		s.logger.Debug("recipient not ready, delivery deferred",
			zap.String("terminal_id", id),
			zap.String("status", string(status)))
		return "deferred", nil
	}

	if err := s.sender.SendInput(ctx, id, msg.Body); err != nil {
		if _, failErr := s.store.MarkFailed(ctx, msg.ID); failErr != nil {
			s.logger.Error("failed to record delivery failure",
				zap.String("message_id", msg.ID),
				zap.Error(failErr))
		}
		msg.Status = StatusFailed
		publishMessageEvent(ctx, s.eventBus, s.logger, "inbox-scheduler", events.InboxMessageFailed, msg)
		return "failed", fmt.Errorf("%w: message %s to terminal %s: %v", ErrDeliveryFailed, msg.ID, id, err)
	}

	delivered, err := s.store.MarkDelivered(ctx, msg.ID)
	if err != nil {
		return "failed", err
	}
	if !delivered {
		// Another event claimed this message after our read.
		return "claimed", nil
	}

	msg.Status = StatusDelivered
	s.logger.Info("inbox message delivered",
		zap.String("message_id", msg.ID),
		zap.String("receiver_id", id),
		zap.String("sender_id", msg.SenderID))
	publishMessageEvent(ctx, s.eventBus, s.logger, "inbox-scheduler", events.InboxMessageDelivered, msg)
	return "delivered", nil
}
