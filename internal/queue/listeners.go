package queue

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
)

// RegisterListeners wires event subscriptions that react by enqueueing jobs.
func RegisterListeners(bus *events.Bus, manager *Manager, log zerolog.Logger) {
	logger := log.With().Str("component", "queue_listeners").Logger()

	// A changed portfolio may reference symbols with no local history yet;
	// refresh prices so the next optimization run has data.
	bus.Subscribe(events.PortfolioChanged, func(event *events.Event) {
		data, ok := event.GetTypedData().(*events.PortfolioChangedData)
		if !ok || data.Action == "deleted" {
			return
		}

		_, err := manager.Submit(JobTypePriceRefresh, PriorityLow, map[string]interface{}{
			"portfolio_id": data.PortfolioID,
		})
		if err != nil && !errors.Is(err, ErrQueueFull) {
			logger.Error().Err(err).
				Int64("portfolio_id", data.PortfolioID).
				Msg("Failed to enqueue price refresh")
		}
	})
}
