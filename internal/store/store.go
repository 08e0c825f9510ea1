// Package store defines the persistence contracts the automation engines use:
// a JSON key-value store for session state and a resume ledger.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// KV is a JSON key-value store. Missing keys are absent from Get results.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, values map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Ledger record statuses.
const (
	StatusDownloaded = "downloaded"
)

// Queryable ledger fields.
const (
	FieldName   = "name"
	FieldStatus = "status"
)

// ResumeRecord is one collected resume.
type ResumeRecord struct {
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Status    string    `json:"status" validate:"required"`
}

// Validate checks the record before it is written.
func (r *ResumeRecord) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return &Error{Op: "validate", Message: "invalid resume record", Cause: err}
	}
	return nil
}

// ResumeStore is the resume ledger.
type ResumeStore interface {
	Add(ctx context.Context, rec ResumeRecord) (int64, error)
	All(ctx context.Context) ([]ResumeRecord, error)
	Query(ctx context.Context, field, value string) ([]ResumeRecord, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Clear(ctx context.Context) error
}

// Error is a persistence failure.
type Error struct {
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("store %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CheckField returns an error for fields Query does not support.
func CheckField(field string) error {
	switch field {
	case FieldName, FieldStatus:
		return nil
	}
	return &Error{Op: "query", Message: fmt.Sprintf("unsupported field %q", field)}
}

// Decode unmarshals the value stored under key into v. It reports false when
// the key is absent.
func Decode(values map[string]json.RawMessage, key string, v any) (bool, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, &Error{Op: "decode", Message: key, Cause: err}
	}
	return true, nil
}

// Encode marshals every value of a Set call.
func Encode(values map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, &Error{Op: "encode", Message: k, Cause: err}
		}
		out[k] = data
	}
	return out, nil
}
