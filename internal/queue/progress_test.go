package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourlis/allocator/internal/events"
)

// progressCollector subscribes to JobProgress and records typed payloads.
type progressCollector struct {
	mu      sync.Mutex
	reports []*events.JobStatusData
}

func newProgressCollector(bus *events.Bus) *progressCollector {
	c := &progressCollector{}
	bus.Subscribe(events.JobProgress, func(event *events.Event) {
		if data, ok := event.GetTypedData().(*events.JobStatusData); ok {
			c.mu.Lock()
			c.reports = append(c.reports, data)
			c.mu.Unlock()
		}
	})
	return c
}

func (c *progressCollector) snapshot() []*events.JobStatusData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*events.JobStatusData(nil), c.reports...)
}

func (c *progressCollector) waitFor(t *testing.T, n int) []*events.JobStatusData {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d progress reports, got %d", n, len(c.snapshot()))
	return nil
}

func TestProgressReporterThrottles(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Close()
	em := events.NewManager(bus, zerolog.Nop())
	collector := newProgressCollector(bus)

	pr := NewProgressReporter(em, "job-1", JobTypeOptimizeMulti)

	// Burst of intermediate reports within the throttle window: only the
	// first goes through.
	for i := 1; i <= 5; i++ {
		pr.Report("generation", i, 100)
	}
	reports := collector.waitFor(t, 1)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Generation)
	assert.Equal(t, 100, reports[0].Total)
	assert.InDelta(t, 1.0, reports[0].Percent, 1e-9)

	// Completion bypasses the throttle.
	pr.Report("generation", 100, 100)
	reports = collector.waitFor(t, 2)
	assert.Equal(t, 100, reports[1].Generation)
	assert.InDelta(t, 100.0, reports[1].Percent, 1e-9)
}

func TestProgressReporterNilManagerIsSafe(t *testing.T) {
	pr := &ProgressReporter{}
	pr.Report("generation", 1, 10) // must not panic
}
