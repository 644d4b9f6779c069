package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
)

// StatusMonitor periodically checks system health and emits an event when
// the overall status transitions (healthy <-> degraded).
type StatusMonitor struct {
	eventManager   *events.Manager
	systemHandlers *SystemHandlers
	log            zerolog.Logger
	stop           chan struct{}

	lastStatus string
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager *events.Manager, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		stop:           make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop halts the monitoring loop
func (m *StatusMonitor) Stop() {
	close(m.stop)
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkStatus()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkStatus()
		}
	}
}

// checkStatus snapshots system health and emits on transitions.
func (m *StatusMonitor) checkStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot := m.systemHandlers.GetSystemStatusSnapshot(ctx)

	if snapshot.Status == m.lastStatus {
		return
	}

	m.log.Info().
		Str("previous", m.lastStatus).
		Str("current", snapshot.Status).
		Msg("System status changed")

	if m.eventManager != nil {
		m.eventManager.EmitTyped(events.SystemStatusChanged, "status_monitor", &events.SystemStatusChangedData{
			Status: snapshot.Status,
		})
	}
	m.lastStatus = snapshot.Status
}
