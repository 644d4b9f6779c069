// Package handlers provides HTTP handlers for portfolio CRUD.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
	"github.com/skourlis/allocator/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests.
type Handler struct {
	repo *portfolio.Repository
	em   *events.Manager
	log  zerolog.Logger
}

// NewHandler creates a new portfolio handler. The event manager may be nil;
// PortfolioChanged events are then skipped.
func NewHandler(repo *portfolio.Repository, em *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		em:   em,
		log:  log.With().Str("handler", "portfolio").Logger(),
	}
}

// emitChanged publishes a PortfolioChanged event. Listeners react by
// refreshing price history for the portfolio's symbols.
func (h *Handler) emitChanged(id int64, action string) {
	if h.em == nil {
		return
	}
	h.em.EmitTyped(events.PortfolioChanged, "portfolio", &events.PortfolioChangedData{
		PortfolioID: id,
		Action:      action,
	})
}

type portfolioRequest struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		h.writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	if portfolios == nil {
		portfolios = []*portfolio.Portfolio{}
	}
	h.writeJSON(w, http.StatusOK, portfolios)
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.repo.Create(&portfolio.Portfolio{Name: req.Name, Symbols: req.Symbols})
	if err != nil {
		if isValidationErr(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		h.writeError(w, http.StatusInternalServerError, "failed to create portfolio")
		return
	}
	h.emitChanged(created.ID, "created")
	h.writeJSON(w, http.StatusCreated, created)
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	p, err := h.repo.Get(id)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "portfolio not found")
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to get portfolio")
		h.writeError(w, http.StatusInternalServerError, "failed to get portfolio")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleUpdate handles PUT /api/portfolios/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := &portfolio.Portfolio{ID: id, Name: req.Name, Symbols: req.Symbols}
	if err := h.repo.Update(p); err != nil {
		switch {
		case errors.Is(err, portfolio.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "portfolio not found")
		case isValidationErr(err):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Int64("id", id).Msg("Failed to update portfolio")
			h.writeError(w, http.StatusInternalServerError, "failed to update portfolio")
		}
		return
	}
	h.emitChanged(id, "updated")
	h.writeJSON(w, http.StatusOK, p)
}

// HandleDelete handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return
	}

	if err := h.repo.Delete(id); err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "portfolio not found")
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to delete portfolio")
		h.writeError(w, http.StatusInternalServerError, "failed to delete portfolio")
		return
	}
	h.emitChanged(id, "deleted")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// isValidationErr reports whether the error is one of the portfolio
// validation sentinels.
func isValidationErr(err error) bool {
	return errors.Is(err, portfolio.ErrEmptyName) ||
		errors.Is(err, portfolio.ErrNoAssets) ||
		errors.Is(err, portfolio.ErrEmptySymbol) ||
		errors.Is(err, portfolio.ErrDuplicateSymbol)
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
