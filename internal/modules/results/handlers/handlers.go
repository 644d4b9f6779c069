// Package handlers provides HTTP handlers for the run archive.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/modules/results"
)

// Handler handles results HTTP requests.
type Handler struct {
	repo *results.Repository
	log  zerolog.Logger
}

// NewHandler creates a new results handler.
func NewHandler(repo *results.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "results").Logger(),
	}
}

// HandleList handles GET /api/results?limit=N
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	runs, err := h.repo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*results.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// HandleGet handles GET /api/results/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.repo.Get(id)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		h.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleLatest handles GET /api/results/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.Latest()
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "no runs archived yet")
			return
		}
		h.log.Error().Err(err).Msg("Failed to get latest run")
		h.writeError(w, http.StatusInternalServerError, "failed to get latest run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleDelete handles DELETE /api/results/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.Delete(id); err != nil {
		if errors.Is(err, results.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		h.writeError(w, http.StatusInternalServerError, "failed to delete run")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
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
