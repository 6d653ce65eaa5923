package model

import "time"

// RunMode identifies which pipeline produced a run log entry.
type RunMode string

const (
	RunModeLoad   RunMode = "load"
	RunModeEnrich RunMode = "enrich"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a row of the etl_runs table.
type Run struct {
	ID          string      `json:"id"`
	Mode        RunMode     `json:"mode"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// RunSummary holds the end-of-run counters.
type RunSummary struct {
	Processed         int           `json:"processed"`
	Enriched          int           `json:"enriched"`
	Skipped           int           `json:"skipped"`
	Inserted          int           `json:"inserted"`
	ExternalIDDropped int           `json:"external_id_dropped"`
	RatingsRead       int           `json:"ratings_read"`
	RatingsInserted   int64         `json:"ratings_inserted"`
	RatingsDropped    int           `json:"ratings_dropped"`
	CacheHits         int           `json:"cache_hits"`
	NetworkCalls      int           `json:"network_calls"`
	RateLimited       bool          `json:"rate_limited"`
	StoppedEarly      bool          `json:"stopped_early"`
	Elapsed           time.Duration `json:"elapsed"`
}
