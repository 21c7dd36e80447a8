package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store persists inbox messages. Queries are written with ? placeholders and
// rebound per driver, so the same store runs on SQLite and Postgres.
type Store struct {
	db *sqlx.DB // writer
	ro *sqlx.DB // reader
}

// NewStore creates an inbox store and ensures its schema exists.
func NewStore(writer, reader *sqlx.DB) (*Store, error) {
	s := &Store{db: writer, ro: reader}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize inbox schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS inbox_messages (
		id TEXT PRIMARY KEY,
		receiver_id TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'DELIVERED', 'FAILED')),
		created_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_inbox_messages_receiver ON inbox_messages(receiver_id, status, created_at);
	`)
	return err
}

// Enqueue inserts a message. A missing ID is allocated, CreatedAt is stamped
// with the current UTC time, and an empty status defaults to PENDING.
func (s *Store) Enqueue(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}

	query := s.db.Rebind(`
		INSERT INTO inbox_messages (id, receiver_id, sender_id, body, status, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.ReceiverID, m.SenderID, m.Body, string(m.Status), m.CreatedAt, m.DeliveredAt)
	if err != nil {
		return fmt.Errorf("failed to insert inbox message %s: %w", m.ID, err)
	}
	return nil
}

// GetOldestPending returns the receiver's oldest PENDING message, or nil
// when nothing is queued. FIFO order is by creation time with the id as a
// tie-breaker.
func (s *Store) GetOldestPending(ctx context.Context, receiverID string) (*Message, error) {
	var m Message
	query := s.ro.Rebind(`
		SELECT id, receiver_id, sender_id, body, status, created_at, delivered_at
		FROM inbox_messages
		WHERE receiver_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`)
	err := s.ro.GetContext(ctx, &m, query, receiverID, string(StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkDelivered advances a PENDING message to DELIVERED and stamps
// delivered_at. It reports false when the message was no longer PENDING,
// which callers treat as a delivery already claimed elsewhere.
func (s *Store) MarkDelivered(ctx context.Context, id string) (bool, error) {
	query := s.db.Rebind(`
		UPDATE inbox_messages SET status = ?, delivered_at = ?
		WHERE id = ? AND status = ?
	`)
	result, err := s.db.ExecContext(ctx, query,
		string(StatusDelivered), time.Now().UTC(), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark inbox message %s delivered: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkFailed advances a PENDING message to FAILED. Like MarkDelivered it
// reports false when the message had already reached DELIVERED or FAILED.
func (s *Store) MarkFailed(ctx context.Context, id string) (bool, error) {
	query := s.db.Rebind(`
		UPDATE inbox_messages SET status = ?
		WHERE id = ? AND status = ?
	`)
	result, err := s.db.ExecContext(ctx, query, string(StatusFailed), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark inbox message %s failed: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListMessages returns the receiver's messages, newest first. An empty
// status matches every status.
func (s *Store) ListMessages(ctx context.Context, receiverID string, status Status, limit int) ([]*Message, error) {
	query := `
		SELECT id, receiver_id, sender_id, body, status, created_at, delivered_at
		FROM inbox_messages
		WHERE receiver_id = ?
	`
	args := []interface{}{receiverID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var out []*Message
	if err := s.ro.SelectContext(ctx, &out, s.ro.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}
