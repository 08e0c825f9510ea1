// Package localstore keeps session state and the resume ledger in a local
// SQLite file. It is the default backend.
package localstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jonathan/hirebot/internal/store"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "hirebot.db"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS resumes (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	status    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resumes_name ON resumes(name);
CREATE INDEX IF NOT EXISTS idx_resumes_status ON resumes(status);
`

// DB is an open SQLite database holding both stores.
type DB struct {
	sql *sql.DB

	KV      *KV
	Resumes *Resumes
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{sql: db, KV: &KV{db: db}, Resumes: &Resumes{db: db}}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.sql.Close()
}

var (
	_ store.KV          = (*KV)(nil)
	_ store.ResumeStore = (*Resumes)(nil)
)
