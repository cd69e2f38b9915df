package domain

import (
	"context"
	"time"
)

// Run status values stored in a RunRecord.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunError     = "error"
)

// RunStore persists the history of flow executions. Transcripts themselves
// are never stored.
type RunStore interface {
	StartRun(ctx context.Context, run RunRecord) error
	FinishRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

type RunRecord struct {
	ID         string     `json:"id"`
	Variant    string     `json:"variant"`
	Task       string     `json:"task"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	Iterations int        `json:"iterations"`
	Usage      Usage      `json:"usage"`
	Summary    string     `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
