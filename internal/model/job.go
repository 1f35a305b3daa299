package model

import "time"

// JobStatus is the lifecycle state of a batch match job.
type JobStatus string

// Job status constants.
const (
	JobPending   JobStatus = "pending"
	JobParsing   JobStatus = "parsing"
	JobMatching  JobStatus = "matching"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ItemError records a per-row failure inside a job.
type ItemError struct {
	Description string `json:"description"`
	Message     string `json:"message"`
	Row         int    `json:"row"`
}

// MatchJob tracks a batch run over the rows of one BOQ.
type MatchJob struct {
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	ID          string      `json:"id"`
	Method      string      `json:"method"`
	Status      JobStatus   `json:"status"`
	Message     string      `json:"message,omitempty"`
	Errors      []ItemError `json:"errors,omitempty"`
	Processed   int         `json:"processed"`
	Total       int         `json:"total"`
	Progress    int         `json:"progress"`
	Matched     int         `json:"matched"`
}
