package models

import (
	"time"
)

// SyncRunStatus is the lifecycle state of a sync run.
type SyncRunStatus string

const (
	SyncRunStatusPending   SyncRunStatus = "pending"
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusCompleted SyncRunStatus = "completed"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusCancelled SyncRunStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SyncRunStatus) IsTerminal() bool {
	switch s {
	case SyncRunStatusCompleted, SyncRunStatusFailed, SyncRunStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a run in this status still owns the store.
func (s SyncRunStatus) IsActive() bool {
	return s == SyncRunStatusPending || s == SyncRunStatusRunning
}

// SyncRun tracks one synchronization attempt end to end.
// Field order matches schema: id, status, started_at, completed_at, ...
type SyncRun struct {
	ID             string        `json:"id" db:"id"`
	Status         SyncRunStatus `json:"status" db:"status"`
	StartedAt      time.Time     `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	TotalCards     int           `json:"total_cards" db:"total_cards"`
	ProcessedCards int           `json:"processed_cards" db:"processed_cards"`
	UpdatedCards   int           `json:"updated_cards" db:"updated_cards"`
	SkippedCards   int           `json:"skipped_cards" db:"skipped_cards"`
	ErrorCount     int           `json:"error_count" db:"error_count"`
	ErrorMessage   *string       `json:"error_message,omitempty" db:"error_message"`
	Note           *string       `json:"note,omitempty" db:"note"`
	DatasetStamp   *time.Time    `json:"dataset_stamp,omitempty" db:"dataset_stamp"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Progress returns the percentage of the dataset processed so far. Zero until
// the total is known.
func (r *SyncRun) Progress() float64 {
	if r.TotalCards <= 0 {
		return 0
	}
	pct := float64(r.ProcessedCards) / float64(r.TotalCards) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// SyncRunResponse is the API response for a single run, with derived progress.
type SyncRunResponse struct {
	SyncRun
	ProgressPercent float64 `json:"progress_percent"`
}

// NewSyncRunResponse builds the response shape for a run.
func NewSyncRunResponse(run SyncRun) SyncRunResponse {
	return SyncRunResponse{
		SyncRun:         run,
		ProgressPercent: run.Progress(),
	}
}

// SyncRunListResponse is the response for listing sync runs
type SyncRunListResponse struct {
	Items      []SyncRun `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// StartSyncResponse is returned when a run is accepted.
type StartSyncResponse struct {
	RunID  string        `json:"run_id"`
	Status SyncRunStatus `json:"status"`
}
