// Package db stores run history in SQLite.
//
// The schema is embedded in the binary and applied with golang-migrate when
// the database is opened, so a history file can be created anywhere
// without shipping migration files.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

// ConnectionConfig holds configuration for SQLite connections.
type ConnectionConfig struct {
	Path        string
	BusyTimeout time.Duration

	// MaxOpenConns is 1 for history files: there is a single writer per
	// process and WAL readers do not need a pool.
	MaxOpenConns int
}

// DefaultConnectionConfig returns the configuration Open uses.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// DSN returns the modernc.org/sqlite data source name for c. Pragmas are
// passed as _pragma parameters so every pooled connection gets them.
func (c ConnectionConfig) DSN() string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	return c.Path + "?" + q.Encode()
}

// NewSQLiteConnection opens and pings the database described by config and
// checks that WAL journaling took effect.
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", config.Path, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query database %s: %w", config.Path, err)
	}
	if mode != "wal" {
		db.Close()
		return nil, fmt.Errorf("database %s: journal mode is %q, want wal", config.Path, mode)
	}
	return db, nil
}
