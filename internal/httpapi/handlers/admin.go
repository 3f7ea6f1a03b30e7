package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sukryu/stellane/internal/journal"
	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/runtime"
)

// AdminHandler serves the read-only control-plane surface over a wired
// Runtime: worker list/pause/resume, per-worker queue depth, and journal
// recoverable/dead-lettered entry inspection and manual retry.
type AdminHandler struct {
	rt *runtime.Runtime
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(rt *runtime.Runtime) *AdminHandler {
	return &AdminHandler{rt: rt}
}

// ListWorkers handles GET /admin/workers
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.rt.Workers()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id, err := parseWorkerID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, wk := range h.rt.Workers() {
		if wk.ID == id {
			h.respondJSON(w, http.StatusOK, wk)
			return
		}
	}

	h.respondError(w, http.StatusNotFound, "worker not found")
}

// PauseWorker handles POST /admin/workers/{workerID}/pause
func (h *AdminHandler) PauseWorker(w http.ResponseWriter, r *http.Request) {
	id, err := parseWorkerID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rt.PauseWorker(id); err != nil {
		logger.Error().Err(err).Int("worker_id", id).Msg("failed to pause worker")
		h.respondError(w, http.StatusNotFound, "worker not found")
		return
	}

	logger.Info().Int("worker_id", id).Msg("worker paused")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "worker paused",
		"worker_id": id,
	})
}

// ResumeWorker handles POST /admin/workers/{workerID}/resume
func (h *AdminHandler) ResumeWorker(w http.ResponseWriter, r *http.Request) {
	id, err := parseWorkerID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rt.ResumeWorker(id); err != nil {
		logger.Error().Err(err).Int("worker_id", id).Msg("failed to resume worker")
		h.respondError(w, http.StatusNotFound, "worker not found")
		return
	}

	logger.Info().Int("worker_id", id).Msg("worker resumed")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "worker resumed",
		"worker_id": id,
	})
}

// GetQueues handles GET /admin/queues — each worker's in-flight task count
// stands in for the teacher's per-priority Redis stream depth, since
// placement here is per-worker rather than per-priority-queue.
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	workers := h.rt.Workers()

	var total int64
	depths := make(map[string]interface{}, len(workers))
	for _, wk := range workers {
		key := "worker-" + strconv.Itoa(wk.ID)
		depths[key] = map[string]interface{}{
			"depth":  wk.CurrentTaskCount,
			"paused": wk.Paused,
		}
		total += wk.CurrentTaskCount
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":      depths,
		"total_depth": total,
	})
}

// ListRecoverable handles GET /admin/journal/recoverable
func (h *AdminHandler) ListRecoverable(w http.ResponseWriter, r *http.Request) {
	jrnl := h.rt.Journal()
	if jrnl == nil {
		h.respondError(w, http.StatusConflict, "recovery not enabled")
		return
	}

	entries := make([]*journal.Entry, 0)
	err := jrnl.IterRecoverable(func(e *journal.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to scan recoverable journal entries")
		h.respondError(w, http.StatusInternalServerError, "failed to list recoverable entries")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ListDeadLettered handles GET /admin/journal/dead-letter
func (h *AdminHandler) ListDeadLettered(w http.ResponseWriter, r *http.Request) {
	jrnl := h.rt.Journal()
	if jrnl == nil {
		h.respondError(w, http.StatusConflict, "recovery not enabled")
		return
	}

	entries := make([]*journal.Entry, 0)
	err := jrnl.IterDeadLettered(func(e *journal.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to scan dead-lettered journal entries")
		h.respondError(w, http.StatusInternalServerError, "failed to list dead-lettered entries")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// RetryEntryRequest represents a request to manually retry a journal entry.
type RetryEntryRequest struct {
	ID string `json:"id"`
}

// RetryEntry handles POST /admin/journal/retry
func (h *AdminHandler) RetryEntry(w http.ResponseWriter, r *http.Request) {
	var req RetryEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.rt.Recover(r.Context(), req.ID); err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "journal entry not found")
			return
		}
		logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to trigger recovery")
		h.respondError(w, http.StatusInternalServerError, "failed to retry entry")
		return
	}

	logger.Info().Str("request_id", req.ID).Msg("journal entry retried manually")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "recovery re-entered",
		"id":      req.ID,
	})
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if !h.rt.Running() {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"runtime": "stopped",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"runtime": "running",
		"workers": len(h.rt.Workers()),
	})
}

func parseWorkerID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "workerID")
	if raw == "" {
		return 0, errors.New("worker ID is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("worker ID must be an integer")
	}
	return id, nil
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
