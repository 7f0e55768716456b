package model

import "time"

// RunStatus represents the current state of a build run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one invocation of the batch builder.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Feeds       []string   `json:"feeds,omitempty"`
	Processed   int64      `json:"processed"`
	Skipped     int64      `json:"skipped"`
	Failed      int64      `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunResult holds the counters reported when a run finishes.
type RunResult struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}
