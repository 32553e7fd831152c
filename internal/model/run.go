package model

import "time"

// RunStatus represents the current state of an audit run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusGenerating  RunStatus = "generating"
	RunStatusRetrieving  RunStatus = "retrieving"
	RunStatusDispatching RunStatus = "dispatching"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run represents a single brand visibility audit.
type Run struct {
	ID        string        `json:"id"`
	Brand     BrandIdentity `json:"brand"`
	Status    RunStatus     `json:"status"`
	Result    *RunResult    `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunResult holds the final outcome of a run: the run-level rollup plus
// enough per-query detail to reconstruct a full citation report.
type RunResult struct {
	Visibility  RunVisibility     `json:"visibility"`
	Queries     []QueryVisibility `json:"queries"`
	DurationMS  int64             `json:"duration_ms"`
	FailedCount int               `json:"failed_count"`
}
