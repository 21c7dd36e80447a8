package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentmux/agentmux/internal/db/dialect"
)

const (
	busyTimeout = 5 * time.Second

	// sqliteReaderConns bounds the read pool. WAL mode supports many readers
	// next to the single writer; four covers the API handlers plus the inbox
	// scheduler.
	sqliteReaderConns = 4
)

// sqliteDSN builds the file DSN for one side of the pool. Both sides enforce
// foreign keys, share the page cache, and wait out short lock contention.
// Journal mode and synchronous level are database-wide, so only the writer
// DSN sets them; readers open in ro mode.
func sqliteDSN(path string, writer bool) string {
	timeoutMS := int(busyTimeout / time.Millisecond)
	if writer {
		return fmt.Sprintf(
			"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
			path, timeoutMS)
	}
	return fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=ro&_busy_timeout=%d&_cache=shared",
		path, timeoutMS)
}

// OpenSQLite opens the write side of the store, creating the database file
// and its directory when missing. A single connection serializes writes so
// SQLITE_BUSY stays out of the picture.
func OpenSQLite(dbPath string) (*sqlx.DB, error) {
	normalizedPath := normalizeSQLitePath(dbPath)
	if err := ensureSQLiteDir(normalizedPath); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	if err := ensureSQLiteFile(normalizedPath); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	db, err := sqlx.Open(dialect.SQLite3, sqliteDSN(normalizedPath, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// OpenSQLiteReader opens the read side: a small pool of read-only
// connections that WAL mode lets proceed without blocking on the writer.
func OpenSQLiteReader(dbPath string) (*sqlx.DB, error) {
	normalizedPath := normalizeSQLitePath(dbPath)

	db, err := sqlx.Open(dialect.SQLite3, sqliteDSN(normalizedPath, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}

	db.SetMaxOpenConns(sqliteReaderConns)
	db.SetMaxIdleConns(sqliteReaderConns)

	return db, nil
}

func ensureSQLiteDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func ensureSQLiteFile(dbPath string) error {
	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func normalizeSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
