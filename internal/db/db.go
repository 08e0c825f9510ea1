// Package db provides PostgreSQL storage for session state, the resume ledger
// and the automation run log.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS resumes (
	id        BIGSERIAL PRIMARY KEY,
	name      TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	status    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resumes_name ON resumes(name);
CREATE INDEX IF NOT EXISTS idx_resumes_status ON resumes(status);
CREATE TABLE IF NOT EXISTS automation_runs (
	id           UUID PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	page_url     TEXT NOT NULL DEFAULT '',
	stats        JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);
`

// EnsureSchema creates the tables this package uses if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// KV returns the PostgreSQL store.KV.
func (db *DB) KV() *KV {
	return &KV{pool: db.pool}
}

// Resumes returns the PostgreSQL resume ledger.
func (db *DB) Resumes() *Resumes {
	return &Resumes{pool: db.pool}
}

// CreateRun records the start of an automation run and returns its ID
func (db *DB) CreateRun(ctx context.Context, kind, pageURL string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO automation_runs (id, kind, status, page_url)
		 VALUES ($1, $2, $3, $4)`,
		id, kind, RunStatusRunning, pageURL,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run as finished and stores its final counters
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, stats any) error {
	jsonBytes, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE automation_runs SET status = $1, stats = $2, completed_at = NOW() WHERE id = $3`,
		status, jsonBytes, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun returns the run with runID, or nil when there is none.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		"SELECT "+runColumns+" FROM automation_runs WHERE id = $1", runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// RunFilters narrows ListRuns. Zero values match everything.
type RunFilters struct {
	Kind   string
	Status string
	Limit  int
}

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

const runColumns = `id, kind, status, page_url, stats, created_at, completed_at`

// runsQuery renders the ListRuns statement and its positional arguments.
func runsQuery(f RunFilters) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("kind", f.Kind)
	add("status", f.Status)

	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultRunLimit
	case limit > maxRunLimit:
		limit = maxRunLimit
	}
	args = append(args, limit)

	var sb strings.Builder
	sb.WriteString("SELECT " + runColumns + " FROM automation_runs")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return sb.String(), args
}

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Kind, &run.Status, &run.PageURL, &run.Stats, &run.CreatedAt, &run.CompletedAt)
	return run, err
}

// ListRuns returns runs matching filters, newest first.
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	query, args := runsQuery(filters)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
