// -----------------------------------------------------------------------
// Dispatcher - leases due jobs and drives them through worker execution
// -----------------------------------------------------------------------

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
	"github.com/ternarybob/fibreflow/internal/services/standardize"
	"github.com/ternarybob/fibreflow/internal/services/status"
	"github.com/ternarybob/fibreflow/internal/services/workers"
)

// Dispatcher drains eligible jobs from the queue into worker execute
// calls. Each task claims its job with a fresh lease before touching any
// state; a task that loses the lease mid-flight has its writes dropped
// by the store.
type Dispatcher struct {
	jobs      interfaces.JobStorage
	jobLogs   interfaces.JobLogStorage
	directory interfaces.WorkerDirectory
	client    interfaces.WorkerClient
	retrier   *RetryController
	reporter  interfaces.ReportService
	events    interfaces.EventService
	pool      *workers.Pool
	collector *metrics.Collector
	transport transportPolicy
	batchSize int
	logger    arbor.ILogger
}

// NewDispatcher wires the dispatch pipeline.
func NewDispatcher(
	jobs interfaces.JobStorage,
	jobLogs interfaces.JobLogStorage,
	directory interfaces.WorkerDirectory,
	client interfaces.WorkerClient,
	retrier *RetryController,
	reporter interfaces.ReportService,
	events interfaces.EventService,
	pool *workers.Pool,
	collector *metrics.Collector,
	config *common.Config,
	logger arbor.ILogger,
) *Dispatcher {
	batchSize := config.Dispatch.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Dispatcher{
		jobs:      jobs,
		jobLogs:   jobLogs,
		directory: directory,
		client:    client,
		retrier:   retrier,
		reporter:  reporter,
		events:    events,
		pool:      pool,
		collector: collector,
		transport: newTransportPolicy(config.Retry.MaxAttempts, config.Retry.MaxBackoff),
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessQueue leases and dispatches one batch of due jobs, returning
// the number of jobs handed to the pool. Queue order is priority first,
// oldest first within a priority.
func (d *Dispatcher) ProcessQueue(ctx context.Context) (int, error) {
	jobs, err := d.jobs.GetPendingJobs(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	d.logger.Debug().Int("count", len(jobs)).Msg("Dispatching job batch")

	submitted := 0
	for _, job := range jobs {
		job := job
		err := d.pool.Submit(ctx, fmt.Sprintf("job-%d", job.ID), func(taskCtx context.Context) {
			d.dispatch(taskCtx, job)
		})
		if err != nil {
			d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Batch dispatch interrupted")
			break
		}
		submitted++
	}
	return submitted, nil
}

// dispatch runs one job end to end: lease, worker selection, execute
// call, and settlement of the outcome.
func (d *Dispatcher) dispatch(ctx context.Context, job *models.Job) {
	start := time.Now()
	lockID := common.NewLockID()

	acquired, err := d.jobs.AcquireLock(ctx, job.ID, lockID)
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Lease acquisition failed")
		return
	}
	if !acquired {
		d.logger.Debug().Int64("job_id", job.ID).Msg("Job already leased, skipping")
		return
	}

	if d.collector != nil {
		d.collector.RecordDispatch()
		defer func() {
			d.collector.ObserveDispatchSeconds(time.Since(start).Seconds())
		}()
	}

	d.jobLog(job.ID, "info", fmt.Sprintf("Dispatch started (provider=%s, action=%s, attempt=%d)",
		job.Provider, job.Action, job.RetryCount+1))

	available := d.directory.HealthyEndpoints(ctx)
	if len(available) == 0 {
		d.settleUnworkable(ctx, job, lockID)
		return
	}
	endpoint := d.directory.Select(job.ID, available)

	if err := d.advance(ctx, job, models.JobStatusDispatching, &interfaces.UpdateOptions{
		AssignedWorker: &endpoint,
		Details:        fmt.Sprintf("Assigned to worker %s", endpoint),
	}); err != nil {
		// An API cancellation between lease and here flips the job
		// terminal and clears the lease; there is nothing to undo.
		d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Job not dispatchable")
		return
	}
	job.AssignedWorker = &endpoint

	params := job.CloneParameters()
	if job.ExternalJobID != "" {
		params["external_job_id"] = job.ExternalJobID
	}
	req := &models.ExecuteRequest{
		JobID:      job.ID,
		Provider:   job.Provider,
		Action:     job.Action,
		Parameters: params,
	}

	if err := d.advance(ctx, job, models.JobStatusRunning, nil); err != nil {
		d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Job no longer runnable")
		return
	}

	d.jobLog(job.ID, "info", fmt.Sprintf("Executing on worker %s", endpoint))

	resp, httpStatus, body, err := d.execute(ctx, endpoint, req)
	switch {
	case err != nil:
		d.jobLog(job.ID, "error", fmt.Sprintf("Worker call failed: %v", err))
		d.retrier.Settle(ctx, job, lockID, fmt.Sprintf("worker call failed: %v", err), nil)

	case httpStatus < 200 || httpStatus >= 300:
		d.jobLog(job.ID, "error", fmt.Sprintf("Worker returned HTTP %d", httpStatus))
		d.retrier.Settle(ctx, job, lockID, fmt.Sprintf("Worker returned %d", httpStatus), map[string]interface{}{
			"response": body,
		})

	case resp.Status == models.WorkerStatusError:
		failure := resp.Error
		if failure == "" {
			failure = "worker reported error"
		}
		d.jobLog(job.ID, "error", fmt.Sprintf("Worker reported error: %s", failure))
		d.settleFailed(ctx, job, lockID, resp.Result, failure, "error")

	case resp.InnerResultStatus() == "failure":
		failure := innerFailureText(resp.Result)
		d.jobLog(job.ID, "warn", fmt.Sprintf("Automation failure: %s", failure))
		d.settleFailed(ctx, job, lockID, resp.Result, failure, "failure")

	default:
		d.settleCompleted(ctx, job, lockID, resp.Result)
	}
}

// execute performs the worker call with transport-level retries. A
// response with any HTTP status ends the loop; only connection failures
// are retried here.
func (d *Dispatcher) execute(ctx context.Context, endpoint string, req *models.ExecuteRequest) (*models.ExecuteResponse, int, string, error) {
	var (
		resp       *models.ExecuteResponse
		httpStatus int
		body       string
		err        error
	)
	for attempt := 0; attempt < d.transport.maxAttempts; attempt++ {
		resp, httpStatus, body, err = d.client.Execute(ctx, endpoint, req)
		if err == nil {
			return resp, httpStatus, body, nil
		}
		if !retryableTransport(err) || attempt == d.transport.maxAttempts-1 {
			break
		}

		wait := d.transport.backoff(attempt)
		d.logger.Debug().
			Err(err).
			Int64("job_id", req.JobID).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying worker call after transport error")

		select {
		case <-ctx.Done():
			return nil, 0, "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return resp, httpStatus, body, err
}

// settleCompleted persists a successful result, maps it to an external
// status, and reports it.
func (d *Dispatcher) settleCompleted(ctx context.Context, job *models.Job, lockID string, result map[string]interface{}) {
	if result == nil {
		result = make(map[string]interface{})
	}

	released, err := d.jobs.ReleaseLock(ctx, job.ID, lockID, models.JobStatusCompleted, &interfaces.UpdateOptions{
		Result:  result,
		Details: "Worker execution completed",
	})
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Completion release failed")
		return
	}
	if !released {
		d.logger.Info().Int64("job_id", job.ID).Msg("Completion dropped, job settled elsewhere")
		return
	}

	canonical := standardize.Standardize(job.Provider, result)
	mapped := status.Map(true, job.Action, canonical)

	d.jobLog(job.ID, "info", fmt.Sprintf("Job completed: %s", mapped))
	d.logger.Info().
		Int64("job_id", job.ID).
		Str("provider", string(job.Provider)).
		Str("status", mapped).
		Msg("Job completed")
	if d.collector != nil {
		d.collector.RecordCompleted()
	}

	old := job.Status
	job.Status = models.JobStatusCompleted
	job.Result = result
	d.publish(job, old, models.JobStatusCompleted, mapped)
	d.report(ctx, job, mapped, result)
}

// settleFailed parks a job whose worker answered but could not complete
// the automation. These are not retried; the portal outcome would not
// change on a second run.
func (d *Dispatcher) settleFailed(ctx context.Context, job *models.Job, lockID string, result map[string]interface{}, failure, label string) {
	if result == nil {
		result = make(map[string]interface{})
	}
	if _, ok := result["error"]; !ok {
		result["error"] = failure
	}
	result["automation_status"] = label

	released, err := d.jobs.ReleaseLock(ctx, job.ID, lockID, models.JobStatusFailed, &interfaces.UpdateOptions{
		Result:  result,
		Details: fmt.Sprintf("Worker failure: %s", failure),
	})
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failure release failed")
		return
	}
	if !released {
		d.logger.Info().Int64("job_id", job.ID).Msg("Failure dropped, job settled elsewhere")
		return
	}

	mapped := status.FailureStatus(job.Action, failure)
	d.logger.Warn().
		Int64("job_id", job.ID).
		Str("provider", string(job.Provider)).
		Str("status", mapped).
		Str("error", failure).
		Msg("Job failed")
	if d.collector != nil {
		d.collector.RecordFailed()
	}

	old := job.Status
	job.Status = models.JobStatusFailed
	job.Result = result
	d.publish(job, old, models.JobStatusFailed, failure)
	d.report(ctx, job, mapped, result)
}

// settleUnworkable parks a leased job in error when no workers are
// configured at all. The condition is operator-level; retrying cannot
// fix it.
func (d *Dispatcher) settleUnworkable(ctx context.Context, job *models.Job, lockID string) {
	result := map[string]interface{}{
		"error":             "no workers configured",
		"automation_status": "error",
	}

	released, err := d.jobs.ReleaseLock(ctx, job.ID, lockID, models.JobStatusError, &interfaces.UpdateOptions{
		Result:  result,
		Details: "No workers configured",
	})
	if err != nil {
		d.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Unworkable release failed")
		return
	}
	if !released {
		return
	}

	d.logger.Error().Int64("job_id", job.ID).Msg("No workers configured, job parked in error")
	d.jobLog(job.ID, "error", "No workers configured")
	if d.collector != nil {
		d.collector.RecordFailed()
	}

	old := job.Status
	job.Status = models.JobStatusError
	job.Result = result
	d.publish(job, old, models.JobStatusError, "no workers configured")
	d.report(ctx, job, status.FailureStatus(job.Action, "no workers configured"), result)
}

// advance moves the job through an intermediate transition and publishes
// the change. The in-memory job mirrors the store so later settlement
// sees the right previous status.
func (d *Dispatcher) advance(ctx context.Context, job *models.Job, next models.JobStatus, opts *interfaces.UpdateOptions) error {
	if err := d.jobs.UpdateJobStatus(ctx, job.ID, next, opts); err != nil {
		return err
	}
	old := job.Status
	job.Status = next
	d.publish(job, old, next, "")
	return nil
}

func (d *Dispatcher) publish(job *models.Job, old, next models.JobStatus, details string) {
	if d.events == nil {
		return
	}
	d.events.Publish(models.JobEvent{
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

func (d *Dispatcher) report(ctx context.Context, job *models.Job, mapped string, result map[string]interface{}) {
	if d.reporter == nil {
		return
	}
	if err := d.reporter.ReportJobStatus(ctx, job, mapped, result); err != nil {
		d.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Status report not delivered")
	}
	if d.collector != nil {
		d.collector.RecordReport()
	}
}

// jobLog appends an operational log line for the job, best-effort.
func (d *Dispatcher) jobLog(jobID int64, level, message string) {
	if d.jobLogs == nil {
		return
	}
	entry := models.NewJobLogEntry(jobID, level, message)
	if err := d.jobLogs.AppendLog(context.Background(), jobID, entry); err != nil {
		d.logger.Debug().Err(err).Int64("job_id", jobID).Msg("Job log write failed")
	}
}

// innerFailureText digs a human-readable failure message out of a worker
// result that carried status=failure.
func innerFailureText(result map[string]interface{}) string {
	if result != nil {
		if msg, ok := result["error"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := result["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "automation reported failure"
}
