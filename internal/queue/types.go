// Package queue runs background jobs: optimization runs, price refreshes and
// maintenance tasks. Jobs execute one at a time on a single worker so the
// optimizer never competes with itself for CPU.
package queue

import "time"

// JobType represents the type of job
type JobType string

const (
	JobTypeOptimizeSingle JobType = "optimize_single"
	JobTypeOptimizeMulti  JobType = "optimize_multi"
	JobTypePriceRefresh   JobType = "price_refresh"
	JobTypeBackup         JobType = "backup"
	JobTypeWALCheckpoint  JobType = "wal_checkpoint"
)

// Priority represents job priority
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Status values for a job's lifecycle.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job represents a queued job
type Job struct {
	ID        string
	Type      JobType
	Priority  Priority
	Payload   map[string]interface{}
	CreatedAt time.Time

	// Progress reporting (injected by the manager before execution)
	progress *ProgressReporter
}

// Progress returns the job's progress reporter, never nil.
func (j *Job) Progress() *ProgressReporter {
	if j.progress == nil {
		return &ProgressReporter{}
	}
	return j.progress
}

// JobStatus is a point-in-time snapshot of a job's state.
type JobStatus struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      string                 `json:"status"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
}

// GetJobDescription returns a human-readable description for a job type
func GetJobDescription(jobType JobType) string {
	switch jobType {
	case JobTypeOptimizeSingle:
		return "Running single-objective optimization"
	case JobTypeOptimizeMulti:
		return "Running multi-objective optimization"
	case JobTypePriceRefresh:
		return "Refreshing price history"
	case JobTypeBackup:
		return "Uploading database backup"
	case JobTypeWALCheckpoint:
		return "Checkpointing database WAL"
	}
	return string(jobType)
}
