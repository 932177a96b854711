// Package store provides the SQLite-backed key-value collection that holds
// rendered articles.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// The blog table is keyed by the composite article key. The category, slug
// and version columns are copied from the saved article so read paths never
// parse keys; rows written under an undecodable key still show up in Keys.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS blog (
	key      TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	slug     TEXT NOT NULL DEFAULT '',
	version  INTEGER NOT NULL DEFAULT 0,
	title    TEXT NOT NULL DEFAULT '',
	excerpt  TEXT NOT NULL DEFAULT '',
	body     TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_blog_category_version ON blog(category, version);
CREATE INDEX IF NOT EXISTS idx_blog_identity ON blog(category, slug, version);
`

// DB wraps a sql.DB with article store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
