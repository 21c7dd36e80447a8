package terminal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentmux/agentmux/internal/provider"
)

// Store persists terminal metadata. Queries are written with ? placeholders
// and rebound per driver, so the same store runs on SQLite and Postgres.
type Store struct {
	db *sqlx.DB // writer
	ro *sqlx.DB // reader
}

// NewStore creates a terminal store and ensures its schema exists.
func NewStore(writer, reader *sqlx.DB) (*Store, error) {
	s := &Store{db: writer, ro: reader}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminals schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS terminals (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		window TEXT NOT NULL,
		provider_kind TEXT NOT NULL,
		agent_profile TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(session, window)
	);

	CREATE INDEX IF NOT EXISTS idx_terminals_session ON terminals(session);
	`)
	return err
}

// Create inserts a terminal row. A missing ID is allocated and CreatedAt is
// stamped with the current UTC time.
func (s *Store) Create(ctx context.Context, t *Terminal) error {
	if t.ID == "" {
		t.ID = newTerminalID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := s.db.Rebind(`
		INSERT INTO terminals (id, session, window, provider_kind, agent_profile, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Session, t.Window, string(t.ProviderKind), t.AgentProfile, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert terminal %s: %w", t.ID, err)
	}
	return nil
}

// Get returns a terminal by id. A missing row yields ErrUnknownTerminal.
func (s *Store) Get(ctx context.Context, id string) (*Terminal, error) {
	var t Terminal
	query := s.ro.Rebind(`
		SELECT id, session, window, provider_kind, agent_profile, created_at
		FROM terminals WHERE id = ?
	`)
	err := s.ro.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", provider.ErrUnknownTerminal, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes a terminal row. Deleting a missing row yields
// ErrUnknownTerminal.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM terminals WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete terminal %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", provider.ErrUnknownTerminal, id)
	}
	return nil
}

// List returns all terminals ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Terminal, error) {
	var out []*Terminal
	err := s.ro.SelectContext(ctx, &out, `
		SELECT id, session, window, provider_kind, agent_profile, created_at
		FROM terminals ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListBySession returns the terminals of one session ordered by creation time.
func (s *Store) ListBySession(ctx context.Context, session string) ([]*Terminal, error) {
	var out []*Terminal
	query := s.ro.Rebind(`
		SELECT id, session, window, provider_kind, agent_profile, created_at
		FROM terminals WHERE session = ? ORDER BY created_at ASC, id ASC
	`)
	err := s.ro.SelectContext(ctx, &out, query, session)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSessions returns the distinct sessions with their terminal counts.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	err := s.ro.SelectContext(ctx, &out, `
		SELECT session, COUNT(*) AS terminal_count
		FROM terminals GROUP BY session ORDER BY session ASC
	`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup adapts the store to the provider manager's metadata interface.
type Lookup struct {
	store *Store
}

// NewLookup wraps a store for provider rebuilds.
func NewLookup(store *Store) *Lookup {
	return &Lookup{store: store}
}

var _ provider.TerminalLookup = (*Lookup)(nil)

// Lookup resolves a terminal id to the metadata the manager rebuilds
// providers from.
func (l *Lookup) Lookup(ctx context.Context, terminalID string) (provider.TerminalInfo, error) {
	t, err := l.store.Get(ctx, terminalID)
	if err != nil {
		return provider.TerminalInfo{}, err
	}
	return provider.TerminalInfo{
		ID:      t.ID,
		Session: t.Session,
		Window:  t.Window,
		Kind:    t.ProviderKind,
		Profile: t.AgentProfile,
	}, nil
}
