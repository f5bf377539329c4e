package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
	"github.com/ternarybob/fibreflow/internal/services/status"
)

// Reconciler settles in-flight jobs whose synchronous worker response
// was lost. It polls each assigned worker's status endpoint and applies
// outcomes the dispatch path missed. Writes race benignly with a slow
// dispatch task: whichever settles first wins, the loser's write is
// dropped by the store.
type Reconciler struct {
	jobs       interfaces.JobStorage
	client     interfaces.WorkerClient
	reporter   interfaces.ReportService
	events     interfaces.EventService
	retryDelay time.Duration
	grace      time.Duration
	logger     arbor.ILogger
}

// NewReconciler creates the passive reconciliation service. grace is
// how long a running job is left alone before a worker's not_found
// answer is believed; it defaults to the worker call timeout so the
// synchronous path always gets to finish first.
func NewReconciler(jobs interfaces.JobStorage, client interfaces.WorkerClient, reporter interfaces.ReportService, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Reconciler {
	retryDelay := config.Retry.Delay
	if retryDelay <= 0 {
		retryDelay = 60 * time.Second
	}
	grace := config.Workers.Timeout
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Reconciler{
		jobs:       jobs,
		client:     client,
		reporter:   reporter,
		events:     events,
		retryDelay: retryDelay,
		grace:      grace,
		logger:     logger,
	}
}

// Poll checks every in-flight job with an assigned worker.
func (r *Reconciler) Poll(ctx context.Context) error {
	jobs, err := r.jobs.GetJobsByStatuses(ctx, []models.JobStatus{
		models.JobStatusRunning, models.JobStatusDispatching,
	})
	if err != nil {
		return fmt.Errorf("failed to load in-flight jobs: %w", err)
	}

	for _, job := range jobs {
		worker := job.GetAssignedWorker()
		if worker == "" {
			continue
		}
		r.reconcile(ctx, job, worker)
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, job *models.Job, worker string) {
	resp, err := r.client.JobStatus(ctx, worker, job.ID)
	if err != nil {
		// An unreachable worker is the dispatch task's problem; the
		// stale-lease sweep covers a dead one.
		r.logger.Debug().Err(err).Int64("job_id", job.ID).Str("worker", worker).Msg("Worker status poll failed")
		return
	}

	switch resp.Status {
	case models.WorkerStatusSuccess, models.WorkerStatusCompleted:
		r.settleCompleted(ctx, job, resp.Result)
	case models.WorkerStatusError, models.WorkerStatusFailed:
		r.settleFailed(ctx, job, resp)
	case models.WorkerStatusNotFound:
		r.handleLost(ctx, job)
	default:
		// in_progress: the worker still owns it
	}
}

func (r *Reconciler) settleCompleted(ctx context.Context, job *models.Job, result map[string]interface{}) {
	if result == nil {
		result = make(map[string]interface{})
	}

	err := r.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, &interfaces.UpdateOptions{
		Result:  result,
		Details: "Recovered completed result from worker status poll",
	})
	if errors.Is(err, interfaces.ErrInvalidTransition) {
		// Already settled by the dispatch path
		return
	}
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Reconciled completion write failed")
		return
	}

	canonical := standardize.Standardize(job.Provider, result)
	mapped := status.Map(true, job.Action, canonical)

	r.logger.Info().
		Int64("job_id", job.ID).
		Str("status", mapped).
		Msg("Job completion recovered by reconciliation")

	old := job.Status
	job.Status = models.JobStatusCompleted
	job.Result = result
	r.publish(job, old, models.JobStatusCompleted, "reconciled")
	r.report(ctx, job, mapped, result)
}

func (r *Reconciler) settleFailed(ctx context.Context, job *models.Job, resp *models.JobStatusResponse) {
	failure := resp.Error
	if failure == "" {
		failure = "worker reported error"
	}
	result := resp.Result
	if result == nil {
		result = make(map[string]interface{})
	}
	if _, ok := result["error"]; !ok {
		result["error"] = failure
	}
	result["automation_status"] = "error"

	err := r.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, &interfaces.UpdateOptions{
		Result:  result,
		Details: fmt.Sprintf("Recovered failure from worker status poll: %s", failure),
	})
	if errors.Is(err, interfaces.ErrInvalidTransition) {
		return
	}
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Reconciled failure write failed")
		return
	}

	mapped := status.FailureStatus(job.Action, failure)
	r.logger.Warn().
		Int64("job_id", job.ID).
		Str("status", mapped).
		Str("error", failure).
		Msg("Job failure recovered by reconciliation")

	old := job.Status
	job.Status = models.JobStatusFailed
	job.Result = result
	r.publish(job, old, models.JobStatusFailed, failure)
	r.report(ctx, job, mapped, result)
}

// handleLost deals with a worker that has no record of a job it was
// assigned. Within the grace window this is the normal handoff gap and
// is ignored; past it the job is rescheduled or parked.
func (r *Reconciler) handleLost(ctx context.Context, job *models.Job) {
	if job.StartedAt == nil || time.Since(*job.StartedAt) < r.grace {
		return
	}

	if job.RetryCount < job.MaxRetries {
		scheduled := time.Now().Add(r.retryDelay)
		err := r.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusRetryPending, &interfaces.UpdateOptions{
			Result: map[string]interface{}{
				"error":             "worker lost track of job",
				"automation_status": "error",
				"retry":             job.RetryCount + 1,
				"max_retries":       job.MaxRetries,
			},
			Details:      "Worker lost track of job, rescheduled",
			ScheduledFor: &scheduled,
			BumpRetry:    true,
		})
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			return
		}
		if err != nil {
			r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Lost-job reschedule failed")
			return
		}

		r.logger.Warn().
			Int64("job_id", job.ID).
			Int("retry", job.RetryCount+1).
			Msg("Worker lost track of job, rescheduled")

		old := job.Status
		job.Status = models.JobStatusRetryPending
		r.publish(job, old, models.JobStatusRetryPending, "worker lost track of job")
		return
	}

	result := map[string]interface{}{
		"error":             "worker lost track of job",
		"automation_status": "error",
		"retries_exhausted": true,
	}
	err := r.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusError, &interfaces.UpdateOptions{
		Result:  result,
		Details: "Worker lost track of job, retries exhausted",
	})
	if errors.Is(err, interfaces.ErrInvalidTransition) {
		return
	}
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Lost-job error write failed")
		return
	}

	r.logger.Error().Int64("job_id", job.ID).Msg("Worker lost track of job, retries exhausted")

	old := job.Status
	job.Status = models.JobStatusError
	job.Result = result
	r.publish(job, old, models.JobStatusError, "worker lost track of job")
	r.report(ctx, job, status.FailureStatus(job.Action, "worker lost track of job"), result)
}

func (r *Reconciler) publish(job *models.Job, old, next models.JobStatus, details string) {
	if r.events == nil {
		return
	}
	r.events.Publish(models.JobEvent{
		JobID:         job.ID,
		ExternalJobID: job.ExternalJobID,
		Provider:      job.Provider,
		Action:        job.Action,
		OldStatus:     old,
		NewStatus:     next,
		Worker:        job.GetAssignedWorker(),
		Details:       details,
		Timestamp:     time.Now(),
	})
}

func (r *Reconciler) report(ctx context.Context, job *models.Job, mapped string, result map[string]interface{}) {
	if r.reporter == nil {
		return
	}
	if err := r.reporter.ReportJobStatus(ctx, job, mapped, result); err != nil {
		r.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Reconciled report not delivered")
	}
}
