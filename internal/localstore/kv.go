package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/jonathan/hirebot/internal/store"
)

// KV is the SQLite store.KV.
type KV struct {
	db *sql.DB
}

func (k *KV) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	query := `SELECT key, value FROM kv WHERE key IN (?` + strings.Repeat(`, ?`, len(keys)-1) + `)`
	rows, err := k.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &store.Error{Op: "get", Message: "query kv", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, &store.Error{Op: "get", Message: "scan kv", Cause: err}
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "get", Message: "iterate kv", Cause: err}
	}
	return out, nil
}

// Set writes all values in one transaction.
func (k *KV) Set(ctx context.Context, values map[string]any) error {
	encoded, err := store.Encode(values)
	if err != nil {
		return err
	}
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Op: "set", Message: "begin", Cause: err}
	}
	defer tx.Rollback()

	for key, value := range encoded {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, string(value)); err != nil {
			return &store.Error{Op: "set", Message: key, Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &store.Error{Op: "set", Message: "commit", Cause: err}
	}
	return nil
}

func (k *KV) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := k.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return &store.Error{Op: "remove", Message: key, Cause: err}
		}
	}
	return nil
}

func (k *KV) Clear(ctx context.Context) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return &store.Error{Op: "clear", Message: "kv", Cause: err}
	}
	return nil
}
