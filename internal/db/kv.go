package db

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/hirebot/internal/store"
)

// KV is the PostgreSQL store.KV. Values live in a jsonb column.
type KV struct {
	pool *pgxpool.Pool
}

var _ store.KV = (*KV)(nil)

func (k *KV) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := k.pool.Query(ctx, `SELECT key, value FROM kv WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, &store.Error{Op: "get", Message: "query kv", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
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

// Set upserts all values in one batch.
func (k *KV) Set(ctx context.Context, values map[string]any) error {
	encoded, err := store.Encode(values)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for key, value := range encoded {
		batch.Queue(
			`INSERT INTO kv (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value,
		)
	}
	if err := k.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &store.Error{Op: "set", Message: "upsert kv", Cause: err}
	}
	return nil
}

func (k *KV) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := k.pool.Exec(ctx, `DELETE FROM kv WHERE key = ANY($1)`, keys); err != nil {
		return &store.Error{Op: "remove", Message: "delete kv", Cause: err}
	}
	return nil
}

func (k *KV) Clear(ctx context.Context) error {
	if _, err := k.pool.Exec(ctx, `DELETE FROM kv`); err != nil {
		return &store.Error{Op: "clear", Message: "kv", Cause: err}
	}
	return nil
}
