// Package handlers exposes the optimization API: synchronous runs for small
// problems and queued jobs for long ones.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/modules/optimization"
	"github.com/skourlis/allocator/internal/queue"
	"github.com/skourlis/allocator/internal/services"
)

// Handler handles optimization HTTP requests.
type Handler struct {
	allocation *services.AllocationService
	jobs       *queue.Manager
	log        zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(allocation *services.AllocationService, jobs *queue.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		allocation: allocation,
		jobs:       jobs,
		log:        log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleRun handles POST /api/optimization/run
//
// Runs the optimization synchronously and returns the archived run. Suitable
// for small problems; large ones should go through the job endpoints.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req services.AllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.allocation.Run(r.Context(), req, nil)
	if err != nil {
		if optimization.IsValidation(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("mode", req.Mode).Msg("Optimization run failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleSubmitJob handles POST /api/optimization/jobs
//
// Queues the run and returns the job status immediately. Progress streams
// over /api/events.
func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req services.AllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var jobType queue.JobType
	switch req.Mode {
	case services.ModeSingle:
		jobType = queue.JobTypeOptimizeSingle
	case services.ModeMulti:
		jobType = queue.JobTypeOptimizeMulti
	default:
		h.writeError(w, http.StatusBadRequest, "mode must be \"single\" or \"multi\"")
		return
	}

	// Round-trip through JSON so the payload matches what the job handler
	// decodes back into an AllocationRequest.
	payload, err := requestToPayload(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := h.jobs.Submit(jobType, queue.PriorityHigh, payload)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			h.writeError(w, http.StatusServiceUnavailable, "job queue is full")
			return
		}
		h.log.Error().Err(err).Msg("Failed to submit optimization job")
		h.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}
	h.writeJSON(w, http.StatusAccepted, status)
}

// HandleListJobs handles GET /api/optimization/jobs
func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.jobs.List())
}

// HandleGetJob handles GET /api/optimization/jobs/{id}
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	status, err := h.jobs.Status(id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", id).Msg("Failed to get job status")
		h.writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleDefaults handles GET /api/optimization/defaults
func (h *Handler) HandleDefaults(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, optimization.DefaultParameters())
}

// requestToPayload converts the request into the generic job payload map.
func requestToPayload(req services.AllocationRequest) (map[string]interface{}, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
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
