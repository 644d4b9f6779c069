// Package handlers provides HTTP handlers for report views.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/modules/reports"
	"github.com/skourlis/allocator/internal/modules/results"
)

// Handler handles report HTTP requests.
type Handler struct {
	service *reports.Service
	log     zerolog.Logger
}

// NewHandler creates a new reports handler.
func NewHandler(service *reports.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "reports").Logger(),
	}
}

// HandleDashboard handles GET /api/reports/dashboard?lookback_days=N
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	lookback := 0
	if s := r.URL.Query().Get("lookback_days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid lookback_days parameter")
			return
		}
		lookback = n
	}

	dash, err := h.service.Dashboard(lookback)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build dashboard")
		h.writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	h.writeJSON(w, http.StatusOK, dash)
}

// HandleCompare handles GET /api/reports/compare?from=ID&to=ID
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	fromID := r.URL.Query().Get("from")
	toID := r.URL.Query().Get("to")
	if fromID == "" || toID == "" {
		h.writeError(w, http.StatusBadRequest, "from and to run ids are required")
		return
	}

	cmp, err := h.service.Compare(fromID, toID)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to compare runs")
		h.writeError(w, http.StatusInternalServerError, "failed to compare runs")
		return
	}
	h.writeJSON(w, http.StatusOK, cmp)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
