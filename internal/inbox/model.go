// Package inbox queues messages addressed to agent terminals and delivers
// each one at most once, at a moment when the recipient can accept input.
//
// Delivery is event-driven: a filesystem watcher turns per-terminal log
// mutations into bus events, and the scheduler reacts to those events by
// draining the recipient's queue in FIFO order. Nothing polls.
package inbox

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidStatus is returned when a status filter is not a known status.
var ErrInvalidStatus = errors.New("invalid message status")

// Status is the delivery state of an inbox message. PENDING is the only
// non-terminal state: once a message reaches DELIVERED or FAILED it never
// changes again.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// ParseStatus validates a wire string and returns the matching Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusDelivered, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Message is one queued instruction for a terminal. Body is typed into the
// receiver verbatim when delivered.
type Message struct {
	ID          string     `json:"id" db:"id"`
	ReceiverID  string     `json:"receiver_id" db:"receiver_id"`
	SenderID    string     `json:"sender_id" db:"sender_id"`
	Body        string     `json:"body" db:"body"`
	Status      Status     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}
