package models

import (
	"time"

	"github.com/google/uuid"
)

// Import run statuses. A run is terminal once its status leaves
// StatusPending/StatusInProgress.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// ImportRun is the progress/cancellation ledger for one import run.
// Counters are cumulative across chunks; the breakdown maps are merged
// additively after every chunk.
type ImportRun struct {
	ID                 uuid.UUID      `json:"id"`
	Status             string         `json:"status"`
	RowsInserted       int64          `json:"rows_inserted"`
	DistrictsProcessed int64          `json:"districts_processed"`
	ErrorCount         int64          `json:"error_count"`
	StatusBreakdown    map[string]int `json:"status_breakdown"`
	StateBreakdown     map[string]int `json:"state_breakdown"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the run can accept no further chunks.
func (r *ImportRun) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed || r.Status == StatusCancelled
}

// ProgressDelta is one chunk's contribution to the ledger, applied
// additively by the import run repository.
type ProgressDelta struct {
	RowsInserted       int64          `json:"rows_inserted"`
	DistrictsProcessed int64          `json:"districts_processed"`
	ErrorCount         int64          `json:"error_count"`
	StatusBreakdown    map[string]int `json:"status_breakdown"`
	StateBreakdown     map[string]int `json:"state_breakdown"`
}
