package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/hirebot/internal/store"
)

// Resumes is the PostgreSQL resume ledger.
type Resumes struct {
	pool *pgxpool.Pool
}

var _ store.ResumeStore = (*Resumes)(nil)

func (r *Resumes) Add(ctx context.Context, rec store.ResumeRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO resumes (name, timestamp, status) VALUES ($1, $2, $3) RETURNING id`,
		rec.Name, rec.Timestamp, rec.Status,
	).Scan(&id)
	if err != nil {
		return 0, &store.Error{Op: "add", Message: rec.Name, Cause: err}
	}
	return id, nil
}

func (r *Resumes) All(ctx context.Context) ([]store.ResumeRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, timestamp, status FROM resumes ORDER BY id`)
	if err != nil {
		return nil, &store.Error{Op: "all", Message: "query resumes", Cause: err}
	}
	return collectResumes(rows)
}

// Query returns the records whose field equals value. field is "name" or
// "status".
func (r *Resumes) Query(ctx context.Context, field, value string) ([]store.ResumeRecord, error) {
	if err := store.CheckField(field); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, timestamp, status FROM resumes WHERE `+pgx.Identifier{field}.Sanitize()+` = $1 ORDER BY id`,
		value,
	)
	if err != nil {
		return nil, &store.Error{Op: "query", Message: field, Cause: err}
	}
	return collectResumes(rows)
}

func (r *Resumes) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM resumes WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, &store.Error{Op: "exists", Message: name, Cause: err}
	}
	return exists, nil
}

func (r *Resumes) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM resumes`); err != nil {
		return &store.Error{Op: "clear", Message: "resumes", Cause: err}
	}
	return nil
}

func collectResumes(rows pgx.Rows) ([]store.ResumeRecord, error) {
	defer rows.Close()
	var out []store.ResumeRecord
	for rows.Next() {
		var rec store.ResumeRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Timestamp, &rec.Status); err != nil {
			return nil, &store.Error{Op: "scan", Message: "resumes", Cause: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "scan", Message: "resumes", Cause: err}
	}
	return out, nil
}
