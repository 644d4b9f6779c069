package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
)

// streamedEventTypes lists every event type forwarded to stream clients.
var streamedEventTypes = []events.EventType{
	events.JobQueued,
	events.JobStarted,
	events.JobProgress,
	events.JobCompleted,
	events.JobFailed,
	events.PortfolioChanged,
	events.PriceUpdated,
	events.RunArchived,
	events.BackupCompleted,
	events.SystemStatusChanged,
	events.ErrorOccurred,
}

// EventsStreamHandler handles Server-Sent Events (SSE) streaming for all
// system events.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// parseTypesFilter turns the comma-separated types query parameter into a
// lookup set. A nil result means no filtering.
func parseTypesFilter(typesFilter string) map[events.EventType]bool {
	if typesFilter == "" {
		return nil
	}
	allowed := make(map[events.EventType]bool)
	for _, t := range strings.Split(typesFilter, ",") {
		allowed[events.EventType(strings.TrimSpace(t))] = true
	}
	return allowed
}

// subscribeStream subscribes a per-connection channel to the event bus,
// respecting the optional type filter. Sends never block; a slow client
// drops events instead of stalling the bus.
func subscribeStream(bus *events.Bus, allowed map[events.EventType]bool, eventChan chan *events.Event, log zerolog.Logger) {
	handler := func(event *events.Event) {
		if allowed != nil && !allowed[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	if allowed == nil {
		for _, eventType := range streamedEventTypes {
			bus.Subscribe(eventType, handler)
		}
		return
	}
	for eventType := range allowed {
		bus.Subscribe(eventType, handler)
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	typesFilter := r.URL.Query().Get("types")
	allowedTypes := parseTypesFilter(typesFilter)

	h.log.Info().
		Str("types_filter", typesFilter).
		Msg("Client connected to event stream")

	// Buffer to prevent blocking the bus dispatcher
	eventChan := make(chan *events.Event, 100)
	subscribeStream(h.eventBus, allowedTypes, eventChan, h.log)

	done := r.Context().Done()

	// Send initial connection message
	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.log.Debug().
				Str("event_type", string(event.Type)).
				Msg("Sending event to client")

			eventJSON := h.encodeEvent(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})

			fmt.Fprintf(w, "data: %s\n\n", eventJSON)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to JSON string.
func (h *EventsStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
