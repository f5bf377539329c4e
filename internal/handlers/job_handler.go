// -----------------------------------------------------------------------
// Job handler - public API surface for job submission and inspection
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
	"github.com/ternarybob/fibreflow/internal/services/status"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobs        interfaces.JobStorage
	history     interfaces.HistoryStorage
	screenshots interfaces.ScreenshotStorage
	jobLogs     interfaces.JobLogStorage
	reporter    interfaces.ReportService
	events      interfaces.EventService
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(
	jobs interfaces.JobStorage,
	history interfaces.HistoryStorage,
	screenshots interfaces.ScreenshotStorage,
	jobLogs interfaces.JobLogStorage,
	reporter interfaces.ReportService,
	events interfaces.EventService,
	logger arbor.ILogger,
) *JobHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &JobHandler{
		jobs:        jobs,
		history:     history,
		screenshots: screenshots,
		jobLogs:     jobLogs,
		reporter:    reporter,
		events:      events,
		validate:    validator.New(),
		logger:      logger,
	}
}

// CreateJobHandler accepts a new automation job
// POST /jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CreateJobRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.CreateJob(ctx, req.ToJob())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.logger.Info().
		Int64("job_id", job.ID).
		Str("provider", string(job.Provider)).
		Str("action", string(job.Action)).
		Msg("Job created")

	if h.events != nil {
		h.events.Publish(models.JobEvent{
			JobID:         job.ID,
			ExternalJobID: job.ExternalJobID,
			Provider:      job.Provider,
			Action:        job.Action,
			OldStatus:     job.Status,
			NewStatus:     job.Status,
			Details:       "Job created",
			Timestamp:     time.Now(),
		})
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetJobHandler returns a single job by ID
// GET /jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	// A job row always reads back with a concrete status
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler returns a filtered, paginated list of jobs
// GET /jobs?status=completed&limit=50&offset=0
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statusFilter := r.URL.Query().Get("status")
	limit := QueryInt(r, "limit", 50)
	offset := QueryInt(r, "offset", 0)

	if statusFilter != "" && !models.JobStatus(statusFilter).IsValid() {
		WriteError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	jobs, err := h.jobs.ListJobs(ctx, statusFilter, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	counts, err := h.jobs.CountJobsByStatus(ctx)
	totalCount := 0
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count jobs")
		totalCount = len(jobs)
	} else if statusFilter != "" {
		totalCount = counts[models.JobStatus(statusFilter)]
	} else {
		for _, n := range counts {
			totalCount += n
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// UpdateJobHandler applies an admin update to a job
// PATCH /jobs/{id}
func (h *JobHandler) UpdateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.UpdateJobRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := map[string]interface{}{}
	if req.Result != nil {
		fields["result"] = req.Result
	}
	if req.Evidence != nil {
		fields["evidence"] = req.Evidence
	}
	if len(fields) > 0 {
		if err := h.jobs.UpdateJobFields(ctx, id, fields); err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				WriteError(w, http.StatusNotFound, "Job not found")
				return
			}
			h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to update job fields")
			WriteError(w, http.StatusInternalServerError, "Failed to update job")
			return
		}
	}

	if req.Status != nil {
		err := h.jobs.UpdateJobStatus(ctx, id, *req.Status, &interfaces.UpdateOptions{
			Details: "Status updated via API",
		})
		if err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				WriteError(w, http.StatusNotFound, "Job not found")
				return
			}
			if errors.Is(err, interfaces.ErrInvalidTransition) {
				WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to update job status")
			WriteError(w, http.StatusInternalServerError, "Failed to update job")
			return
		}
	}

	job, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}

	h.logger.Info().Int64("job_id", id).Msg("Job updated via API")
	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler cancels a job that has not reached a terminal state
// DELETE /jobs/{id}
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	before, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}
	previous := before.Status

	job, err := h.jobs.CancelJob(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		if errors.Is(err, interfaces.ErrNotCancellable) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to cancel job")
		WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	h.logger.Info().
		Int64("job_id", id).
		Str("previous_status", string(previous)).
		Msg("Job cancelled via API")

	if h.events != nil {
		h.events.Publish(models.JobEvent{
			JobID:         job.ID,
			ExternalJobID: job.ExternalJobID,
			Provider:      job.Provider,
			Action:        job.Action,
			OldStatus:     previous,
			NewStatus:     models.JobStatusCancelled,
			Details:       "Cancelled via API",
			Timestamp:     time.Now(),
		})
	}

	if h.reporter != nil {
		canonical := standardize.Standardize(job.Provider, job.Result)
		mapped := status.Map(false, job.Action, canonical)
		if err := h.reporter.ReportJobStatus(ctx, job, mapped, job.Result); err != nil {
			h.logger.Warn().Err(err).Int64("job_id", id).Msg("Cancellation report failed")
		}
	}

	WriteJSON(w, http.StatusOK, job)
}

// HistoryHandler returns the audit trail for a job, oldest first
// GET /history/{id}
func (h *JobHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}

	entries, err := h.history.GetHistory(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to get job history")
		WriteError(w, http.StatusInternalServerError, "Failed to get job history")
		return
	}

	// A job predating history writes still answers with its current state
	if len(entries) == 0 {
		entries = []*models.JobHistoryEntry{{
			JobID:     id,
			Status:    string(job.Status),
			Timestamp: job.UpdatedAt,
			Details:   "Current status",
		}}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  id,
		"history": entries,
		"count":   len(entries),
	})
}

// ScreenshotsHandler returns screenshot evidence for a job. Image data
// is omitted unless include_data=true.
// GET /jobs/{id}/screenshots?include_data=false
func (h *JobHandler) ScreenshotsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.jobs.GetJob(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}

	includeData := r.URL.Query().Get("include_data") == "true"

	shots, err := h.screenshots.GetScreenshots(ctx, id, includeData)
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to get screenshots")
		WriteError(w, http.StatusInternalServerError, "Failed to get screenshots")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":      id,
		"screenshots": shots,
		"count":       len(shots),
	})
}

// LogsHandler returns the automation log entries captured for a job
// GET /jobs/{id}/logs?limit=100
func (h *JobHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := JobIDFromPath(r.URL.Path, 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.jobs.GetJob(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to read job")
		return
	}

	limit := QueryInt(r, "limit", 100)

	logs, err := h.jobLogs.GetLogs(ctx, id, limit)
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Failed to get job logs")
		WriteError(w, http.StatusInternalServerError, "Failed to get job logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": id,
		"logs":   logs,
		"count":  len(logs),
	})
}
