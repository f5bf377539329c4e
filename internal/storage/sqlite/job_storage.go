package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// jobColumns is the canonical column list shared by every job SELECT
const jobColumns = `id, external_job_id, provider, action, parameters, priority, retry_count, max_retries,
	scheduled_for, status, assigned_worker, lock_id, locked_at, result, evidence,
	created_at, updated_at, started_at, completed_at`

// splitAndTrim splits a string by delimiter and trims whitespace from each part
func splitAndTrim(s string, delimiter string) []string {
	parts := strings.Split(s, delimiter)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// JobStorage implements SQLite persistence for the job queue
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job and its creation history row
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	// Zero is a legal cap meaning no retries; only absence defaults
	if job.MaxRetries < 0 {
		job.MaxRetries = models.DefaultMaxRetries
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	paramsJSON, err := marshalParams(job.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize parameters: %w", err)
	}

	var externalID sql.NullString
	if job.ExternalJobID != "" {
		externalID = sql.NullString{String: job.ExternalJobID, Valid: true}
	}

	var scheduledFor sql.NullInt64
	if job.ScheduledFor != nil {
		scheduledFor = sql.NullInt64{Int64: job.ScheduledFor.Unix(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO job_queue (
			external_job_id, provider, action, parameters, priority, retry_count, max_retries,
			scheduled_for, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		externalID,
		string(job.Provider),
		string(job.Action),
		paramsJSON,
		job.Priority,
		job.RetryCount,
		job.MaxRetries,
		scheduledFor,
		string(job.Status),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(job.Provider)).Msg("Failed to insert job")
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read job id: %w", err)
	}
	job.ID = id

	details := fmt.Sprintf("Job created (provider=%s, action=%s, priority=%d)", job.Provider, job.Action, job.Priority)
	if err := appendHistoryTx(ctx, tx, id, "created", details, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job create: %w", err)
	}

	s.logger.Debug().
		Int64("job_id", id).
		Str("provider", string(job.Provider)).
		Str("action", string(job.Action)).
		Msg("Job created")

	return job, nil
}

// GetJob retrieves a job by id
func (s *JobStorage) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE id = ?`, jobColumns)
	return scanJob(s.db.db.QueryRowContext(ctx, query, id))
}

// GetJobByExternalID retrieves a job by the caller-supplied external id
func (s *JobStorage) GetJobByExternalID(ctx context.Context, externalID string) (*models.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE external_job_id = ? ORDER BY id DESC LIMIT 1`, jobColumns)
	return scanJob(s.db.db.QueryRowContext(ctx, query, externalID))
}

// ListJobs lists jobs newest first, optionally filtered by a
// comma-separated status list
func (s *JobStorage) ListJobs(ctx context.Context, statusFilter string, limit, offset int) ([]*models.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE 1=1`, jobColumns)
	args := []interface{}{}

	if statusFilter != "" {
		statuses := splitAndTrim(statusFilter, ",")
		if len(statuses) == 1 {
			query += " AND status = ?"
			args = append(args, statuses[0])
		} else if len(statuses) > 1 {
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
			query += fmt.Sprintf(" AND status IN (%s)", placeholders)
			for _, st := range statuses {
				args = append(args, st)
			}
		}
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// GetPendingJobs returns unleased jobs due for dispatch, highest
// priority first, oldest first within a priority
func (s *JobStorage) GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s FROM job_queue
		WHERE lock_id IS NULL
		  AND status IN ('pending', 'retry_pending')
		  AND (scheduled_for IS NULL OR scheduled_for <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`, jobColumns)

	rows, err := s.db.db.QueryContext(ctx, query, time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// GetJobsByStatuses returns all jobs currently in one of the given states
func (s *JobStorage) GetJobsByStatuses(ctx context.Context, statuses []models.JobStatus) ([]*models.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE status IN (%s) ORDER BY id ASC`, jobColumns, placeholders)

	args := make([]interface{}, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// AcquireLock attempts to lease a job for dispatch. The row itself is
// the lock: the conditional update succeeds for exactly one caller.
func (s *JobStorage) AcquireLock(ctx context.Context, id int64, lockID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE job_queue
		SET lock_id = ?, locked_at = ?, updated_at = ?
		WHERE id = ? AND lock_id IS NULL AND status IN ('pending', 'retry_pending')`,
		lockID, now, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lock result: %w", err)
	}

	return n == 1, nil
}

// ReleaseLock clears the lease and sets the new status, conditional on
// the caller still holding the lease. Returns false when the lease was
// lost (recovered by the sweeper or cleared by cancellation).
func (s *JobStorage) ReleaseLock(ctx context.Context, id int64, lockID string, status models.JobStatus, opts *interfaces.UpdateOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sets := []string{"status = ?", "lock_id = NULL", "locked_at = NULL", "updated_at = ?"}
	args := []interface{}{string(status), now.Unix()}

	var extracted []models.Screenshot
	if opts != nil {
		if opts.Result != nil {
			result := opts.Result
			if shots, found := models.ExtractScreenshots(result); found {
				extracted = shots
				// Do not persist the raw image payload inside the job row
				result = models.CloneWithoutScreenshots(result)
			}
			resultJSON, err := json.Marshal(result)
			if err != nil {
				return false, fmt.Errorf("failed to serialize result: %w", err)
			}
			sets = append(sets, "result = ?")
			args = append(args, string(resultJSON))
		}
		if opts.Evidence != nil {
			evidenceJSON, err := json.Marshal(opts.Evidence)
			if err != nil {
				return false, fmt.Errorf("failed to serialize evidence: %w", err)
			}
			sets = append(sets, "evidence = ?")
			args = append(args, string(evidenceJSON))
		}
		if opts.BumpRetry {
			sets = append(sets, "retry_count = retry_count + 1")
		}
		if opts.ScheduledFor != nil {
			sets = append(sets, "scheduled_for = ?")
			args = append(args, opts.ScheduledFor.Unix())
		}
	}

	if status.IsTerminal() {
		sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
		args = append(args, now.Unix())
	}

	query := fmt.Sprintf("UPDATE job_queue SET %s WHERE id = ? AND lock_id = ?", strings.Join(sets, ", "))
	args = append(args, id, lockID)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read release result: %w", err)
	}
	if n == 0 {
		// Lease no longer ours; sweeper or cancellation got there first
		s.logger.Debug().Int64("job_id", id).Str("lock_id", lockID).Msg("Lock release skipped, lease lost")
		return false, nil
	}

	details := ""
	if opts != nil {
		details = opts.Details
	}
	if err := appendHistoryTx(ctx, tx, id, string(status), details, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit lock release: %w", err)
	}

	// Screenshot persistence is best-effort after the settled write
	for _, shot := range extracted {
		if err := insertScreenshot(ctx, s.db.db, id, shot, now); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", id).Str("name", shot.Name).Msg("Failed to save screenshot")
		}
	}

	s.logger.Debug().Int64("job_id", id).Str("status", string(status)).Msg("Lock released")
	return true, nil
}

// UpdateJobStatus writes a status transition, stamps lifecycle
// timestamps, extracts embedded screenshots, and appends history.
// Terminal states are sticky: a write against a terminal job returns
// ErrInvalidTransition and changes nothing.
func (s *JobStorage) UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus, opts *interfaces.UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM job_queue WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	currentStatus := models.JobStatus(current)
	if !currentStatus.CanTransitionTo(status) {
		s.logger.Warn().
			Int64("job_id", id).
			Str("from", current).
			Str("to", string(status)).
			Msg("Dropping status write, transition not allowed")
		return fmt.Errorf("%w: %s -> %s", interfaces.ErrInvalidTransition, current, status)
	}

	now := time.Now()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(status), now.Unix()}

	var extracted []models.Screenshot
	if opts != nil {
		result := opts.Result
		if result != nil {
			if shots, found := models.ExtractScreenshots(result); found {
				extracted = shots
				// Do not persist the raw image payload inside the job row
				result = models.CloneWithoutScreenshots(result)
			}
			resultJSON, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to serialize result: %w", err)
			}
			sets = append(sets, "result = ?")
			args = append(args, string(resultJSON))
		}
		if opts.Evidence != nil {
			evidenceJSON, err := json.Marshal(opts.Evidence)
			if err != nil {
				return fmt.Errorf("failed to serialize evidence: %w", err)
			}
			sets = append(sets, "evidence = ?")
			args = append(args, string(evidenceJSON))
		}
		if opts.AssignedWorker != nil {
			sets = append(sets, "assigned_worker = ?")
			args = append(args, *opts.AssignedWorker)
		}
		if opts.BumpRetry {
			sets = append(sets, "retry_count = retry_count + 1")
		}
		if opts.ScheduledFor != nil {
			sets = append(sets, "scheduled_for = ?")
			args = append(args, opts.ScheduledFor.Unix())
		}
	}

	if status == models.JobStatusRunning {
		sets = append(sets, "started_at = COALESCE(started_at, ?)")
		args = append(args, now.Unix())
	}
	if status.IsTerminal() {
		sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
		args = append(args, now.Unix())
		// Terminal rows must not keep a lease
		sets = append(sets, "lock_id = NULL", "locked_at = NULL")
	}

	query := fmt.Sprintf("UPDATE job_queue SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	details := ""
	if opts != nil {
		details = opts.Details
	}
	if details == "" {
		details = fmt.Sprintf("Status changed from %s to %s", current, status)
	}
	if err := appendHistoryTx(ctx, tx, id, string(status), details, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	// Screenshot persistence is best-effort: the status write above
	// must survive even when an image row fails to save
	if len(extracted) > 0 {
		saved := 0
		for _, shot := range extracted {
			if err := insertScreenshot(ctx, s.db.db, id, shot, now); err != nil {
				s.logger.Warn().Err(err).Int64("job_id", id).Str("name", shot.Name).Msg("Failed to save screenshot")
				continue
			}
			saved++
		}
		s.logger.Debug().Int64("job_id", id).Int("count", saved).Msg("Screenshots extracted from result")
	}

	s.logger.Debug().
		Int64("job_id", id).
		Str("from", current).
		Str("to", string(status)).
		Msg("Job status updated")

	return nil
}

// UpdateJobFields applies a partial admin update. Only whitelisted
// columns can be touched; status changes go through the transition
// guard of UpdateJobStatus.
func (s *JobStorage) UpdateJobFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Unix()}

	for key, value := range fields {
		switch key {
		case "priority", "max_retries", "retry_count":
			sets = append(sets, fmt.Sprintf("%s = ?", key))
			args = append(args, value)
		case "scheduled_for":
			switch v := value.(type) {
			case nil:
				sets = append(sets, "scheduled_for = NULL")
			case time.Time:
				sets = append(sets, "scheduled_for = ?")
				args = append(args, v.Unix())
			case int64:
				sets = append(sets, "scheduled_for = ?")
				args = append(args, v)
			default:
				return fmt.Errorf("unsupported scheduled_for value: %T", value)
			}
		case "result", "evidence", "parameters":
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to serialize %s: %w", key, err)
			}
			sets = append(sets, fmt.Sprintf("%s = ?", key))
			args = append(args, string(encoded))
		default:
			return fmt.Errorf("field %q is not updatable", key)
		}
	}

	query := fmt.Sprintf("UPDATE job_queue SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, id)

	res, err := s.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job fields: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return interfaces.ErrJobNotFound
	}

	return nil
}

// CancelJob marks a job cancelled if it has not reached a terminal
// state, releasing any held lease so a late dispatcher write fails its
// lock condition. Returns the updated job.
func (s *JobStorage) CancelJob(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM job_queue WHERE id = ?`, jobColumns)
	job, err := scanJob(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if !job.Status.IsCancellable() {
		return nil, fmt.Errorf("%w: status is %s", interfaces.ErrNotCancellable, job.Status)
	}

	now := time.Now()

	// Keep the cancellation visible in the stored result
	result := job.Result
	if result == nil {
		result = map[string]interface{}{}
	}
	result["cancelled"] = true
	result["cancelled_at"] = now.Format(time.RFC3339)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_queue
		SET status = ?, result = ?, lock_id = NULL, locked_at = NULL,
		    updated_at = ?, completed_at = COALESCE(completed_at, ?)
		WHERE id = ?`,
		string(models.JobStatusCancelled), string(resultJSON), now.Unix(), now.Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	if err := appendHistoryTx(ctx, tx, id, string(models.JobStatusCancelled), "Cancelled via API", now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	job.Status = models.JobStatusCancelled
	job.Result = result
	job.LockID = nil
	job.LockedAt = nil
	job.UpdatedAt = now
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}

	s.logger.Info().Int64("job_id", id).Msg("Job cancelled")
	return job, nil
}

// DeleteJob removes a job row plus its history; screenshots cascade
func (s *JobStorage) DeleteJob(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_history WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job history: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM job_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return interfaces.ErrJobNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job delete: %w", err)
	}

	s.logger.Debug().Int64("job_id", id).Msg("Job deleted")
	return nil
}

// RecoverStaleLocks reclaims leases older than maxAge. A stale running
// job with retries left is requeued as retry_pending with its counter
// bumped; everything else returns to pending.
func (s *JobStorage) RecoverStaleLocks(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, status, retry_count, max_retries
		FROM job_queue
		WHERE lock_id IS NOT NULL
		  AND locked_at IS NOT NULL
		  AND locked_at <= ?
		  AND status IN ('pending', 'dispatching', 'running', 'retry_pending')`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale locks: %w", err)
	}

	type staleJob struct {
		id         int64
		status     string
		retryCount int
		maxRetries int
	}

	var stale []staleJob
	for rows.Next() {
		var j staleJob
		if err := rows.Scan(&j.id, &j.status, &j.retryCount, &j.maxRetries); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale lock row: %w", err)
		}
		stale = append(stale, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate stale locks: %w", err)
	}

	now := time.Now()
	recovered := 0
	for _, j := range stale {
		newStatus := models.JobStatusPending
		bump := ""
		if j.status == string(models.JobStatusRunning) && j.retryCount < j.maxRetries {
			newStatus = models.JobStatusRetryPending
			bump = ", retry_count = retry_count + 1"
		}

		query := fmt.Sprintf(`
			UPDATE job_queue
			SET status = ?, lock_id = NULL, locked_at = NULL, updated_at = ?%s
			WHERE id = ?`, bump)
		if _, err := tx.ExecContext(ctx, query, string(newStatus), now.Unix(), j.id); err != nil {
			return 0, fmt.Errorf("failed to recover job %d: %w", j.id, err)
		}

		details := fmt.Sprintf("Stale lock recovered (was %s, now %s)", j.status, newStatus)
		if err := appendHistoryTx(ctx, tx, j.id, "recovered", details, now); err != nil {
			return 0, err
		}
		recovered++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit stale lock recovery: %w", err)
	}

	if recovered > 0 {
		s.logger.Info().Int("count", recovered).Msg("Stale locks recovered")
	}
	return recovered, nil
}

// CountJobsByStatus returns the current queue depth per status
func (s *JobStorage) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[models.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

// GetAllJobIDs returns the set of existing job ids, used by the
// evidence cleanup to detect orphaned directories
func (s *JobStorage) GetAllJobIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT id FROM job_queue`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// GetJobsCompletedBefore returns terminal jobs whose completion is
// older than the cutoff, candidates for retention cleanup
func (s *JobStorage) GetJobsCompletedBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM job_queue
		WHERE completed_at IS NOT NULL AND completed_at <= ?
		  AND status IN ('completed', 'failed', 'error', 'cancelled')
		ORDER BY completed_at ASC`, jobColumns)

	rows, err := s.db.db.QueryContext(ctx, query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query completed jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// -----------------------------------------------------------------------
// Row scanning
// -----------------------------------------------------------------------

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job          models.Job
		externalID   sql.NullString
		provider     string
		action       string
		paramsJSON   string
		scheduledFor sql.NullInt64
		status       string
		worker       sql.NullString
		lockID       sql.NullString
		lockedAt     sql.NullInt64
		resultJSON   sql.NullString
		evidenceJSON sql.NullString
		createdAt    int64
		updatedAt    int64
		startedAt    sql.NullInt64
		completedAt  sql.NullInt64
	)

	err := row.Scan(
		&job.ID, &externalID, &provider, &action, &paramsJSON, &job.Priority,
		&job.RetryCount, &job.MaxRetries, &scheduledFor, &status, &worker,
		&lockID, &lockedAt, &resultJSON, &evidenceJSON,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Provider = models.Provider(provider)
	job.Action = models.Action(action)
	job.Status = models.JobStatus(status)
	if externalID.Valid {
		job.ExternalJobID = externalID.String
	}
	if worker.Valid {
		job.AssignedWorker = &worker.String
	}
	if lockID.Valid {
		job.LockID = &lockID.String
	}
	if lockedAt.Valid {
		t := time.Unix(lockedAt.Int64, 0)
		job.LockedAt = &t
	}
	if scheduledFor.Valid {
		t := time.Unix(scheduledFor.Int64, 0)
		job.ScheduledFor = &t
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}

	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &job.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
	}
	if job.Parameters == nil {
		job.Parameters = map[string]interface{}{}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &job.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	if evidenceJSON.Valid && evidenceJSON.String != "" {
		if err := json.Unmarshal([]byte(evidenceJSON.String), &job.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func marshalParams(params map[string]interface{}) (string, error) {
	if params == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
