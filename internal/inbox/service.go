package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/provider"
)

// ErrEmptyBody rejects messages without content.
var ErrEmptyBody = errors.New("message body is empty")

const defaultListLimit = 20

// Service is the write-side API of the inbox: callers enqueue messages for a
// terminal and inspect its queue. Delivery itself happens in the Scheduler.
type Service struct {
	store     *Store
	terminals provider.TerminalLookup
	eventBus  bus.EventBus
	logger    *logger.Logger
}

// NewService creates an inbox service. terminals is used to confirm that a
// receiver exists before its queue is touched.
func NewService(store *Store, terminals provider.TerminalLookup, eventBus bus.EventBus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		store:     store,
		terminals: terminals,
		eventBus:  eventBus,
		logger:    log,
	}
}

// EnqueueMessage queues body for the receiver terminal as PENDING. The
// receiver must exist; the sender is recorded verbatim and not validated, so
// callers outside the terminal registry can use symbolic names.
func (s *Service) EnqueueMessage(ctx context.Context, receiverID, senderID, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	if _, err := s.terminals.Lookup(ctx, receiverID); err != nil {
		return nil, err
	}

	m := &Message{
		ReceiverID: receiverID,
		SenderID:   senderID,
		Body:       body,
		Status:     StatusPending,
	}
	if err := s.store.Enqueue(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("inbox message queued",
		zap.String("message_id", m.ID),
		zap.String("receiver_id", receiverID),
		zap.String("sender_id", senderID))
	publishMessageEvent(ctx, s.eventBus, s.logger, "inbox-service", events.InboxMessageQueued, m)
	return m, nil
}

// ListMessages returns the receiver's messages, newest first. status filters
// when non-empty and must be a known status; limit defaults to 20 when
// non-positive.
func (s *Service) ListMessages(ctx context.Context, receiverID, status string, limit int) ([]*Message, error) {
	var st Status
	if status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		st = parsed
	}
	if _, err := s.terminals.Lookup(ctx, receiverID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListMessages(ctx, receiverID, st, limit)
}

func publishMessageEvent(ctx context.Context, eventBus bus.EventBus, log *logger.Logger, source, eventType string, m *Message) {
	if eventBus == nil {
		return
	}

	data := map[string]interface{}{
		"message_id":  m.ID,
		"receiver_id": m.ReceiverID,
		"sender_id":   m.SenderID,
		"status":      string(m.Status),
		"created_at":  m.CreatedAt.Format(time.RFC3339),
	}

	event := bus.NewEvent(eventType, source, data)
	if err := eventBus.Publish(ctx, eventType, event); err != nil {
		log.Error("failed to publish inbox event",
			zap.String("event_type", eventType),
			zap.String("message_id", m.ID),
			zap.Error(err))
	}
}
