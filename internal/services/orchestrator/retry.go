package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/metrics"
	"github.com/ternarybob/fibreflow/internal/services/status"
)

// RetryController settles jobs whose worker call failed at the transport
// or HTTP level. It either reschedules the job with a delay or, once the
// retry budget is spent, parks it in the terminal error state. Both
// outcomes release the lease and fire an external report.
type RetryController struct {
	jobs      interfaces.JobStorage
	reporter  interfaces.ReportService
	events    interfaces.EventService
	collector *metrics.Collector
	delay     time.Duration
	logger    arbor.ILogger
}

// NewRetryController creates the retry controller. delay is the base
// wait before a rescheduled job becomes eligible again.
func NewRetryController(jobs interfaces.JobStorage, reporter interfaces.ReportService, events interfaces.EventService, collector *metrics.Collector, config *common.RetryConfig, logger arbor.ILogger) *RetryController {
	delay := config.Delay
	if delay <= 0 {
		delay = 60 * time.Second
	}
	return &RetryController{
		jobs:      jobs,
		reporter:  reporter,
		events:    events,
		collector: collector,
		delay:     delay,
		logger:    logger,
	}
}

// Settle decides the fate of a leased job after a retryable failure and
// releases the lease accordingly. extra carries failure diagnostics that
// belong in the stored result, such as the worker's raw response.
//
// A job is rescheduled while retry_count < max_retries, so max_retries
// counts the re-dispatches after the first attempt. With max_retries=2
// a job runs three times before parking in error.
func (r *RetryController) Settle(ctx context.Context, job *models.Job, lockID, failure string, extra map[string]interface{}) {
	// The count may have moved since this task leased the job: the
	// reconciler's lost-job path and admin updates both write it.
	if current, err := r.jobs.GetJob(ctx, job.ID); err == nil {
		job.RetryCount = current.RetryCount
		job.MaxRetries = current.MaxRetries
	}
	attempt := job.RetryCount + 1

	result := map[string]interface{}{
		"error":             failure,
		"automation_status": "error",
	}
	for k, v := range extra {
		result[k] = v
	}

	if job.RetryCount < job.MaxRetries {
		result["retry"] = attempt
		result["max_retries"] = job.MaxRetries
		scheduled := time.Now().Add(r.delay)

		released, err := r.jobs.ReleaseLock(ctx, job.ID, lockID, models.JobStatusRetryPending, &interfaces.UpdateOptions{
			Result:       result,
			Details:      fmt.Sprintf("Retry %d/%d scheduled: %s", attempt, job.MaxRetries, failure),
			ScheduledFor: &scheduled,
			BumpRetry:    true,
		})
		if err != nil {
			r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Retry release failed")
			return
		}
		if !released {
			r.logger.Debug().Int64("job_id", job.ID).Msg("Retry release skipped, lease lost")
			return
		}

		r.logger.Warn().
			Int64("job_id", job.ID).
			Int("retry", attempt).
			Int("max_retries", job.MaxRetries).
			Str("error", failure).
			Msg("Job rescheduled after failure")
		if r.collector != nil {
			r.collector.RecordRetry()
		}

		old := job.Status
		job.Status = models.JobStatusRetryPending
		job.RetryCount = attempt
		job.Result = result
		r.publish(job, old, models.JobStatusRetryPending, failure)
		r.report(ctx, job, result)
		return
	}

	result["retries_exhausted"] = true

	released, err := r.jobs.ReleaseLock(ctx, job.ID, lockID, models.JobStatusError, &interfaces.UpdateOptions{
		Result:  result,
		Details: fmt.Sprintf("Retries exhausted after %d attempts: %s", attempt, failure),
	})
	if err != nil {
		r.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Error release failed")
		return
	}
	if !released {
		r.logger.Debug().Int64("job_id", job.ID).Msg("Error release skipped, lease lost")
		return
	}

	r.logger.Error().
		Int64("job_id", job.ID).
		Int("attempts", attempt).
		Str("error", failure).
		Msg("Job failed permanently, retries exhausted")
	if r.collector != nil {
		r.collector.RecordFailed()
	}

	old := job.Status
	job.Status = models.JobStatusError
	job.Result = result
	r.publish(job, old, models.JobStatusError, failure)
	r.report(ctx, job, result)
}

func (r *RetryController) publish(job *models.Job, old, next models.JobStatus, details string) {
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

func (r *RetryController) report(ctx context.Context, job *models.Job, result map[string]interface{}) {
	if r.reporter == nil {
		return
	}
	mapped := status.FailureStatus(job.Action, fmt.Sprintf("%v", result["error"]))
	if err := r.reporter.ReportJobStatus(ctx, job, mapped, result); err != nil {
		r.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Failure report not delivered")
	}
	if r.collector != nil {
		r.collector.RecordReport()
	}
}
