package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
)

// HandlerFunc executes a job. The returned value is stored on the job status
// and surfaced over the API.
type HandlerFunc func(ctx context.Context, job *Job) (interface{}, error)

// Errors returned by Submit.
var (
	ErrUnknownJobType = errors.New("no handler registered for job type")
	ErrQueueFull      = errors.New("job queue is full")
	ErrJobNotFound    = errors.New("job not found")
)

const (
	queueCapacity     = 64
	statusHistorySize = 200
)

// Manager owns the job queue: it accepts submissions, runs them one at a
// time on a single worker goroutine, and keeps a bounded in-memory status
// registry for the API.
type Manager struct {
	mu       sync.Mutex
	handlers map[JobType]HandlerFunc
	statuses map[string]*JobStatus
	order    []string // submission order, oldest first

	pending chan *Job
	em      *events.Manager
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a job manager. Call Start to begin processing.
func NewManager(em *events.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[JobType]HandlerFunc),
		statuses: make(map[string]*JobStatus),
		pending:  make(chan *Job, queueCapacity),
		em:       em,
		log:      log.With().Str("service", "queue").Logger(),
	}
}

// RegisterHandler binds a handler to a job type. Must be called before Start.
func (m *Manager) RegisterHandler(jobType JobType, handler HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = handler
}

// Start launches the worker goroutine.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.work(ctx)
	m.log.Info().Msg("Queue worker started")
}

// Stop cancels the running job (if any) and waits for the worker to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.log.Info().Msg("Queue worker stopped")
}

// Submit enqueues a job and returns its status snapshot. Fails fast when no
// handler is registered or the queue is full.
func (m *Manager) Submit(jobType JobType, priority Priority, payload map[string]interface{}) (*JobStatus, error) {
	m.mu.Lock()
	_, ok := m.handlers[jobType]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	job.progress = NewProgressReporter(m.em, job.ID, jobType)

	status := &JobStatus{
		ID:          job.ID,
		Type:        jobType,
		Status:      StatusPending,
		Description: GetJobDescription(jobType),
		Payload:     payload,
		SubmittedAt: job.CreatedAt,
	}

	select {
	case m.pending <- job:
	default:
		return nil, ErrQueueFull
	}

	m.mu.Lock()
	m.statuses[job.ID] = status
	m.order = append(m.order, job.ID)
	m.pruneLocked()
	m.mu.Unlock()

	m.emitStatus(status)
	m.log.Info().
		Str("job_id", job.ID).
		Str("job_type", string(jobType)).
		Msg("Job submitted")
	return m.snapshot(status), nil
}

// Status returns a snapshot of one job's state.
func (m *Manager) Status(jobID string) (*JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshotLocked(status), nil
}

// List returns snapshots of all tracked jobs, newest first.
func (m *Manager) List() []*JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*JobStatus, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if status, ok := m.statuses[m.order[i]]; ok {
			out = append(out, m.snapshotLocked(status))
		}
	}
	return out
}

// Depth returns the number of jobs waiting to run.
func (m *Manager) Depth() int {
	return len(m.pending)
}

func (m *Manager) work(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.pending:
			m.run(ctx, job)
		}
	}
}

func (m *Manager) run(ctx context.Context, job *Job) {
	m.mu.Lock()
	handler := m.handlers[job.Type]
	status := m.statuses[job.ID]
	m.mu.Unlock()
	if handler == nil || status == nil {
		return
	}

	started := time.Now().UTC()
	m.update(status, func(s *JobStatus) {
		s.Status = StatusRunning
		s.StartedAt = &started
	})

	m.log.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Msg("Job started")

	result, err := handler(ctx, job)

	finished := time.Now().UTC()
	if err != nil {
		m.update(status, func(s *JobStatus) {
			s.Status = StatusFailed
			s.FinishedAt = &finished
			s.Error = err.Error()
		})
		m.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("job_type", string(job.Type)).
			Dur("duration", finished.Sub(started)).
			Msg("Job failed")
		return
	}

	m.update(status, func(s *JobStatus) {
		s.Status = StatusCompleted
		s.FinishedAt = &finished
		s.Result = result
	})
	m.log.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Dur("duration", finished.Sub(started)).
		Msg("Job completed")
}

// update mutates a status under the lock, then emits the new state.
func (m *Manager) update(status *JobStatus, fn func(*JobStatus)) {
	m.mu.Lock()
	fn(status)
	snap := m.snapshotLocked(status)
	m.mu.Unlock()
	m.emitStatus(snap)
}

func (m *Manager) emitStatus(status *JobStatus) {
	if m.em == nil {
		return
	}
	m.em.EmitTyped((&events.JobStatusData{Status: status.Status}).EventType(), "queue", &events.JobStatusData{
		JobID:   status.ID,
		JobType: string(status.Type),
		Status:  status.Status,
		Error:   status.Error,
	})
}

// pruneLocked drops the oldest finished statuses beyond the history cap.
func (m *Manager) pruneLocked() {
	for len(m.order) > statusHistorySize {
		id := m.order[0]
		status := m.statuses[id]
		if status != nil && (status.Status == StatusPending || status.Status == StatusRunning) {
			break
		}
		delete(m.statuses, id)
		m.order = m.order[1:]
	}
}

func (m *Manager) snapshot(status *JobStatus) *JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(status)
}

func (m *Manager) snapshotLocked(status *JobStatus) *JobStatus {
	copied := *status
	return &copied
}
