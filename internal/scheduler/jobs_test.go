package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourlis/allocator/internal/events"
	"github.com/skourlis/allocator/internal/queue"
)

func newTestQueue(t *testing.T) *queue.Manager {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)
	em := events.NewManager(bus, zerolog.Nop())
	return queue.NewManager(em, zerolog.Nop())
}

func TestQueueJobSubmits(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(queue.JobTypeWALCheckpoint, func(ctx context.Context, job *queue.Job) (interface{}, error) {
		return nil, nil
	})

	job := NewWALCheckpointJob(q)
	assert.Equal(t, "wal_checkpoint", job.Name())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, q.Depth())
}

func TestQueueJobUnregisteredType(t *testing.T) {
	q := newTestQueue(t)

	err := NewBackupJob(q).Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrUnknownJobType)
}

func TestSchedulerAddJobBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", NewPriceRefreshJob(newTestQueue(t)))
	require.Error(t, err)
}

func TestSchedulerRunNow(t *testing.T) {
	q := newTestQueue(t)
	q.RegisterHandler(queue.JobTypePriceRefresh, func(ctx context.Context, job *queue.Job) (interface{}, error) {
		return nil, nil
	})

	s := New(zerolog.Nop())
	require.NoError(t, s.RunNow(NewPriceRefreshJob(q)))
	assert.Equal(t, 1, q.Depth())
}
