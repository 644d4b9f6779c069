package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/skourlis/allocator/internal/events"
)

const wsWriteTimeout = 10 * time.Second

// EventsWSHandler streams system events over a WebSocket connection. It
// carries the same payloads as the SSE stream for clients that prefer a
// bidirectional transport.
type EventsWSHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsWSHandler creates a new WebSocket events handler.
func NewEventsWSHandler(eventBus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws requests.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	typesFilter := r.URL.Query().Get("types")
	allowedTypes := parseTypesFilter(typesFilter)

	h.log.Info().
		Str("types_filter", typesFilter).
		Msg("Client connected to WebSocket event stream")

	eventChan := make(chan *events.Event, 100)
	subscribeStream(h.eventBus, allowedTypes, eventChan, h.log)

	ctx := r.Context()

	if err := h.write(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from WebSocket event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			payload := map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}
			if err := h.write(ctx, conn, payload); err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed, closing stream")
				return
			}

		case <-heartbeat.C:
			payload := map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}
			if err := h.write(ctx, conn, payload); err != nil {
				return
			}
		}
	}
}

// write sends one JSON message with a bounded write deadline.
func (h *EventsWSHandler) write(ctx context.Context, conn *websocket.Conn, payload interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, payload)
}
