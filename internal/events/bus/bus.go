// Package bus provides the publish/subscribe fabric for agentmux events.
//
// Subjects follow the NATS convention of dot-separated tokens with * and >
// wildcards (terminal.created, terminal.log.updated.<id>, inbox.message.>).
// The control plane runs on the in-memory bus by default; an external NATS
// server can take its place without changing any publisher or subscriber.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one message on the bus. Data carries subject-specific fields
// such as terminal_id; absent fields are not an error.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"` // component that produced the event
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates an event with a fresh UUID and the current UTC time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler consumes one event. A returned error is logged by the bus
// and does not cancel the subscription.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is a handle on an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the pub/sub surface shared by the in-memory and NATS
// implementations.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe delivers every matching event to the handler. Used by
	// fan-out consumers such as output stream sessions.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe delivers each matching event to one member of the
	// named queue group. The inbox scheduler uses this so a subject is
	// drained once even with several subscribers.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Close tears down the bus. Active subscriptions become invalid.
	Close()

	// IsConnected reports whether the bus can currently deliver events.
	IsConnected() bool
}
