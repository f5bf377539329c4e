// -----------------------------------------------------------------------
// System handler - operational endpoints for health, scheduling and metrics
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/services/metrics"
)

// metricsSummaryWindow bounds the sample range returned by GET /metrics.
const metricsSummaryWindow = time.Hour

// SystemHandler handles operational API requests
type SystemHandler struct {
	scheduler  interfaces.SchedulerService
	processor  interfaces.QueueProcessor
	jobs       interfaces.JobStorage
	sampler    *metrics.Sampler
	directory  interfaces.WorkerDirectory
	maxLockAge time.Duration
	logger     arbor.ILogger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(
	scheduler interfaces.SchedulerService,
	processor interfaces.QueueProcessor,
	jobs interfaces.JobStorage,
	sampler *metrics.Sampler,
	directory interfaces.WorkerDirectory,
	maxLockAge time.Duration,
	logger arbor.ILogger,
) *SystemHandler {
	if maxLockAge <= 0 {
		maxLockAge = 10 * time.Minute
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	return &SystemHandler{
		scheduler:  scheduler,
		processor:  processor,
		jobs:       jobs,
		sampler:    sampler,
		directory:  directory,
		maxLockAge: maxLockAge,
		logger:     logger,
	}
}

// HealthHandler returns health check status
// GET /health
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// VersionHandler returns version information
// GET /version
func (h *SystemHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// ProcessHandler forces an immediate queue poll
// POST /process
func (h *SystemHandler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	dispatched, err := h.processor.ProcessQueue(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual queue poll failed")
		WriteError(w, http.StatusInternalServerError, "Queue poll failed")
		return
	}

	h.logger.Info().Int("dispatched", dispatched).Msg("Queue poll triggered via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"dispatched": dispatched,
	})
}

// RecoverHandler forces a stale-lease sweep
// POST /recover
func (h *SystemHandler) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	recovered, err := h.jobs.RecoverStaleLocks(r.Context(), h.maxLockAge)
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual stale lock sweep failed")
		WriteError(w, http.StatusInternalServerError, "Stale lock sweep failed")
		return
	}

	h.logger.Info().Int("recovered", recovered).Msg("Stale lock sweep triggered via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"recovered": recovered,
	})
}

// SchedulerStatusHandler returns the state of every scheduled task
// GET /scheduler
func (h *SystemHandler) SchedulerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"tasks":   h.scheduler.GetAllTaskStatuses(),
	})
}

// SchedulerResetHandler rebuilds and restarts the task scheduler
// POST /scheduler/reset
func (h *SystemHandler) SchedulerResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.scheduler.Reset(); err != nil {
		h.logger.Error().Err(err).Msg("Scheduler reset failed")
		WriteError(w, http.StatusInternalServerError, "Scheduler reset failed")
		return
	}

	h.logger.Info().Msg("Scheduler reset via API")
	WriteSuccess(w, "Scheduler reset")
}

// MetricsHandler returns recent metric samples with averages
// GET /metrics
func (h *SystemHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	summary, err := h.sampler.Summary(r.Context(), metricsSummaryWindow)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build metrics summary")
		WriteError(w, http.StatusInternalServerError, "Failed to build metrics summary")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *SystemHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}

// WorkersHandler returns the worker directory availability snapshot
// GET /workers
func (h *SystemHandler) WorkersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot := h.directory.Snapshot(r.Context())

	available := 0
	for _, state := range snapshot {
		if state == "available" {
			available++
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workers":   snapshot,
		"total":     len(snapshot),
		"available": available,
	})
}
