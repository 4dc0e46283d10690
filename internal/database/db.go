// Package database wraps the SQLite-backed relational store that
// holds the universe, scores, gating, job runs, the persistent queue
// and per-user quotas. Pure-Go modernc.org/sqlite in WAL mode, wrapped
// in a sqlx.DB so repositories use struct scanning instead of manual
// column-by-column Scan calls.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// DB wraps the sqlx connection pool.
type DB struct {
	conn *sqlx.DB
	path string
}

// New opens (creating if necessary) the SQLite database at dbPath in
// WAL mode with foreign keys enabled.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("database: mkdir: %w", err)
	}

	conn, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sqlx connection for repositories.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Migrate applies the full schema idempotently (CREATE TABLE IF NOT
// EXISTS for every table the store needs).
func (db *DB) Migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("database: migrate: %w", err)
		}
	}
	return nil
}
