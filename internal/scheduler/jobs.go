package scheduler

import (
	"fmt"

	"github.com/skourlis/allocator/internal/queue"
)

// QueueJob submits a queue job each time the schedule fires. The queue's
// single worker serializes the actual work, so an overlapping schedule tick
// just lands behind the previous submission.
type QueueJob struct {
	name     string
	jobType  queue.JobType
	priority queue.Priority
	payload  map[string]interface{}
	queue    *queue.Manager
}

// NewQueueJob creates a scheduled job that enqueues jobType on every tick.
func NewQueueJob(name string, jobType queue.JobType, priority queue.Priority, payload map[string]interface{}, q *queue.Manager) *QueueJob {
	return &QueueJob{
		name:     name,
		jobType:  jobType,
		priority: priority,
		payload:  payload,
		queue:    q,
	}
}

// Name returns the job name
func (j *QueueJob) Name() string {
	return j.name
}

// Run submits the job to the queue
func (j *QueueJob) Run() error {
	if _, err := j.queue.Submit(j.jobType, j.priority, j.payload); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", j.jobType, err)
	}
	return nil
}

// NewPriceRefreshJob refreshes every tracked symbol's price history.
func NewPriceRefreshJob(q *queue.Manager) *QueueJob {
	return NewQueueJob("price_refresh", queue.JobTypePriceRefresh, queue.PriorityMedium, nil, q)
}

// NewWALCheckpointJob truncates the write-ahead logs of all databases.
func NewWALCheckpointJob(q *queue.Manager) *QueueJob {
	return NewQueueJob("wal_checkpoint", queue.JobTypeWALCheckpoint, queue.PriorityLow, nil, q)
}

// NewBackupJob snapshots the databases and uploads an archive.
func NewBackupJob(q *queue.Manager) *QueueJob {
	return NewQueueJob("backup", queue.JobTypeBackup, queue.PriorityLow, nil, q)
}
