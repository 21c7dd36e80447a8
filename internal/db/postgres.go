package db

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/agentmux/agentmux/internal/db/dialect"
)

// Postgres pool sizing when the config leaves it unset. A single agentmux
// process rarely needs more; sessions and inbox traffic are light.
const (
	defaultPGMaxConns = 25
	defaultPGMinConns = 5
)

// OpenPostgres opens a PostgreSQL connection pool through the pgx stdlib
// driver and verifies it with a ping. Unlike SQLite there is no
// writer/reader split; the same pool serves both sides.
func OpenPostgres(dsn string, maxConns, minConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open(dialect.PGX, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultPGMaxConns
	}
	if minConns <= 0 {
		minConns = defaultPGMinConns
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}
