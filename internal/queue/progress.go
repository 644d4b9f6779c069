package queue

import (
	"time"

	"github.com/skourlis/allocator/internal/events"
)

// ProgressReporter allows jobs to report progress during execution.
// Reports are throttled to at most 10/second so a fast optimizer loop
// cannot flood the event stream; completion always bypasses the throttle.
type ProgressReporter struct {
	eventManager *events.Manager
	jobID        string
	jobType      JobType
	lastReport   time.Time
	minInterval  time.Duration
}

// NewProgressReporter creates a new progress reporter with throttling.
func NewProgressReporter(em *events.Manager, jobID string, jobType JobType) *ProgressReporter {
	return &ProgressReporter{
		eventManager: em,
		jobID:        jobID,
		jobType:      jobType,
		minInterval:  100 * time.Millisecond,
	}
}

// Report emits a progress event (throttled to prevent flooding).
// 100% completion always bypasses the throttle.
func (pr *ProgressReporter) Report(stage string, current, total int) {
	if pr.eventManager == nil {
		return
	}

	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		return
	}
	pr.lastReport = now

	var percent float64
	if total > 0 {
		percent = 100 * float64(current) / float64(total)
	}

	pr.eventManager.EmitTyped(events.JobProgress, "queue", &events.JobStatusData{
		JobID:      pr.jobID,
		JobType:    string(pr.jobType),
		Status:     StatusRunning,
		Stage:      stage,
		Generation: current,
		Total:      total,
		Percent:    percent,
	})
}
