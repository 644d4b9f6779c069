package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/defaults", h.HandleDefaults)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.HandleListJobs)
			r.Post("/", h.HandleSubmitJob)
			r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetJob(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
