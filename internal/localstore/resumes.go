package localstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonathan/hirebot/internal/store"
)

// Resumes is the SQLite resume ledger.
type Resumes struct {
	db *sql.DB
}

func (r *Resumes) Add(ctx context.Context, rec store.ResumeRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO resumes (name, timestamp, status) VALUES (?, ?, ?)`,
		rec.Name, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Status)
	if err != nil {
		return 0, &store.Error{Op: "add", Message: rec.Name, Cause: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &store.Error{Op: "add", Message: "last insert id", Cause: err}
	}
	return id, nil
}

func (r *Resumes) All(ctx context.Context) ([]store.ResumeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, timestamp, status FROM resumes ORDER BY id`)
	if err != nil {
		return nil, &store.Error{Op: "all", Message: "query resumes", Cause: err}
	}
	return scanResumes(rows)
}

// Query returns the records whose field equals value. field is "name" or
// "status".
func (r *Resumes) Query(ctx context.Context, field, value string) ([]store.ResumeRecord, error) {
	if err := store.CheckField(field); err != nil {
		return nil, err
	}
	// field is one of two constants, checked above.
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, timestamp, status FROM resumes WHERE `+field+` = ? ORDER BY id`, value)
	if err != nil {
		return nil, &store.Error{Op: "query", Message: field, Cause: err}
	}
	return scanResumes(rows)
}

func (r *Resumes) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM resumes WHERE name = ?)`, name).Scan(&exists)
	if err != nil {
		return false, &store.Error{Op: "exists", Message: name, Cause: err}
	}
	return exists, nil
}

func (r *Resumes) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM resumes`); err != nil {
		return &store.Error{Op: "clear", Message: "resumes", Cause: err}
	}
	return nil
}

func scanResumes(rows *sql.Rows) ([]store.ResumeRecord, error) {
	defer rows.Close()
	var out []store.ResumeRecord
	for rows.Next() {
		var rec store.ResumeRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Name, &ts, &rec.Status); err != nil {
			return nil, &store.Error{Op: "scan", Message: "resumes", Cause: err}
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &store.Error{Op: "scan", Message: "timestamp", Cause: err}
		}
		rec.Timestamp = t
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "scan", Message: "resumes", Cause: err}
	}
	return out, nil
}
