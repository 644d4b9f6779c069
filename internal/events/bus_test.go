package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	var mu sync.Mutex
	var received []*Event
	done := make(chan struct{})

	bus.Subscribe(PriceUpdated, func(event *Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		close(done)
	})

	bus.Emit(PriceUpdated, "prices", map[string]interface{}{
		"symbols": []string{"AAPL"},
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, PriceUpdated, received[0].Type)
	assert.Equal(t, "prices", received[0].Module)
}

func TestBusIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	delivered := make(chan *Event, 1)
	bus.Subscribe(JobCompleted, func(event *Event) {
		delivered <- event
	})

	bus.Emit(JobFailed, "queue", nil)
	bus.Emit(JobCompleted, "queue", nil)

	select {
	case event := <-delivered:
		assert.Equal(t, JobCompleted, event.Type)
	case <-time.After(time.Second):
		t.Fatal("subscribed event was not delivered")
	}

	select {
	case event := <-delivered:
		t.Fatalf("unexpected extra delivery: %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusEmitAfterCloseIsSafe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Close()
	bus.Close() // idempotent

	// Must not panic or block.
	bus.Emit(PriceUpdated, "prices", nil)
}

func TestGetTypedDataJobStatus(t *testing.T) {
	data := &JobStatusData{
		JobID:      "job-1",
		JobType:    "optimize_multi",
		Status:     "running",
		Stage:      "generation",
		Generation: 12,
		Total:      80,
		Percent:    15.0,
	}
	assert.Equal(t, JobProgress, data.EventType())

	event := &Event{
		Type:   JobProgress,
		Data:   convertEventDataToMap(data),
		Module: "queue",
	}
	typed := event.GetTypedData()
	require.NotNil(t, typed)

	status, ok := typed.(*JobStatusData)
	require.True(t, ok)
	assert.Equal(t, "job-1", status.JobID)
	assert.Equal(t, 12, status.Generation)
	assert.Equal(t, 80, status.Total)
}

func TestJobStatusDataEventType(t *testing.T) {
	assert.Equal(t, JobQueued, (&JobStatusData{Status: "pending"}).EventType())
	assert.Equal(t, JobStarted, (&JobStatusData{Status: "running"}).EventType())
	assert.Equal(t, JobProgress, (&JobStatusData{Status: "running", Stage: "generation"}).EventType())
	assert.Equal(t, JobCompleted, (&JobStatusData{Status: "completed"}).EventType())
	assert.Equal(t, JobFailed, (&JobStatusData{Status: "failed"}).EventType())
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	manager := NewManager(bus, zerolog.Nop())

	delivered := make(chan *Event, 1)
	bus.Subscribe(ErrorOccurred, func(event *Event) {
		delivered <- event
	})

	manager.EmitError("prices", assert.AnError, map[string]interface{}{"symbol": "AAPL"})

	select {
	case event := <-delivered:
		typed := event.GetTypedData()
		require.NotNil(t, typed)
		errData, ok := typed.(*ErrorEventData)
		require.True(t, ok)
		assert.Equal(t, assert.AnError.Error(), errData.Error)
	case <-time.After(time.Second):
		t.Fatal("error event was not delivered")
	}
}
