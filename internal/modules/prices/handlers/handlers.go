// Package handlers provides HTTP handlers for price history operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/modules/prices"
)

// Handler handles price history HTTP requests.
type Handler struct {
	service   *prices.Service
	historyDB *prices.HistoryDB
	log       zerolog.Logger
}

// NewHandler creates a new prices handler.
func NewHandler(service *prices.Service, historyDB *prices.HistoryDB, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		historyDB: historyDB,
		log:       log.With().Str("handler", "prices").Logger(),
	}
}

// HandleGetPrices handles GET /api/prices/{symbol}?days=N
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request, symbol string) {
	days := 252
	if v := r.URL.Query().Get("days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}

	priceRows, err := h.historyDB.GetDailyPrices(symbol, days)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get prices")
		h.writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}
	if len(priceRows) == 0 {
		h.writeError(w, http.StatusNotFound, "no price history for symbol")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"count":  len(priceRows),
		"prices": priceRows,
	})
}

// HandleRefresh handles POST /api/prices/refresh
// Body: {"symbols": ["AAPL.US", ...]} - empty body refreshes all stored symbols.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means refresh all
	}

	var err error
	if len(req.Symbols) > 0 {
		err = h.service.EnsureHistory(r.Context(), req.Symbols)
	} else {
		err = h.service.RefreshAll(r.Context())
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Price refresh failed")
		h.writeError(w, http.StatusBadGateway, "price refresh failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
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
