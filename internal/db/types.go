package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run is one automation run: a collector, greet or scrape session from
// start to stop.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	PageURL     string          `json:"page_url"`
	Stats       json.RawMessage `json:"stats,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Run kinds
const (
	RunKindCollector = "collector"
	RunKindGreet     = "greet"
	RunKindScrape    = "scrape"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
