// -----------------------------------------------------------------------
// Job - queue row for one FNO automation request
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provider identifies the fibre network operator a job targets.
type Provider string

const (
	ProviderMFN     Provider = "mfn"
	ProviderOSN     Provider = "osn"
	ProviderOctotel Provider = "octotel"
	ProviderEvotel  Provider = "evotel"
)

// IsValid reports whether the provider is one of the supported FNOs.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderMFN, ProviderOSN, ProviderOctotel, ProviderEvotel:
		return true
	}
	return false
}

// Action identifies what the automation should do on the provider portal.
type Action string

const (
	ActionValidation   Action = "validation"
	ActionCancellation Action = "cancellation"
)

// IsValid reports whether the action is supported.
func (a Action) IsValid() bool {
	return a == ActionValidation || a == ActionCancellation
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusRetryPending JobStatus = "retry_pending"
	JobStatusDispatching  JobStatus = "dispatching"
	JobStatusRunning      JobStatus = "running"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusError        JobStatus = "error"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsValid reports whether s names a known lifecycle state.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRetryPending, JobStatusDispatching,
		JobStatusRunning, JobStatusCompleted, JobStatusFailed,
		JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state. Terminal jobs are never
// re-dispatched and their status never changes again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether a client cancellation is accepted in state s.
func (s JobStatus) IsCancellable() bool {
	switch s {
	case JobStatusPending, JobStatusDispatching, JobStatusRetryPending, JobStatusRunning:
		return true
	}
	return false
}

// validTransitions captures the lifecycle state machine. A leased job can be
// released straight to error (no workers configured) before it ever reaches
// dispatching, and the stale-lock sweep can push leased states back to
// pending or retry_pending.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:      {JobStatusDispatching, JobStatusRunning, JobStatusError, JobStatusCancelled},
	JobStatusRetryPending: {JobStatusDispatching, JobStatusRunning, JobStatusPending, JobStatusError, JobStatusCancelled},
	JobStatusDispatching:  {JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusError, JobStatusRetryPending, JobStatusPending, JobStatusCancelled},
	JobStatusRunning:      {JobStatusCompleted, JobStatusFailed, JobStatusError, JobStatusRetryPending, JobStatusPending, JobStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is legal. Terminal
// states accept no transitions, including to themselves.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Job is the durable record of one automation request. The row doubles as
// the dispatch lock: LockID and LockedAt are set together while exactly one
// dispatcher task owns the job, and cleared on release.
type Job struct {
	ID            int64                  `json:"id"`
	ExternalJobID string                 `json:"external_job_id,omitempty"`
	Provider      Provider               `json:"provider"`
	Action        Action                 `json:"action"`
	Parameters    map[string]interface{} `json:"parameters"`

	Priority     int        `json:"priority"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	Status         JobStatus  `json:"status"`
	AssignedWorker *string    `json:"assigned_worker,omitempty"`
	LockID         *string    `json:"lock_id,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result   map[string]interface{} `json:"result,omitempty"`
	Evidence []string               `json:"evidence,omitempty"`
}

// DefaultMaxRetries is applied when a submission does not specify a cap.
const DefaultMaxRetries = 3

// IsLeased reports whether the job currently carries a dispatch lock.
func (j *Job) IsLeased() bool {
	return j.LockID != nil
}

// GetAssignedWorker returns the assigned worker URL or empty string.
func (j *Job) GetAssignedWorker() string {
	if j.AssignedWorker == nil {
		return ""
	}
	return *j.AssignedWorker
}

// ReportJobID returns the identifier used in external reports: the client's
// external id when present, otherwise a synthesized one from the internal id.
func (j *Job) ReportJobID() string {
	if j.ExternalJobID != "" {
		return j.ExternalJobID
	}
	return fmt.Sprintf("FF-%d", j.ID)
}

// CloneParameters returns a shallow copy of the job parameters, never nil.
func (j *Job) CloneParameters() map[string]interface{} {
	params := make(map[string]interface{}, len(j.Parameters)+1)
	for k, v := range j.Parameters {
		params[k] = v
	}
	return params
}

// ResultJSON serializes the result map for storage, or returns empty string
// when there is no result.
func (j *Job) ResultJSON() (string, error) {
	if j.Result == nil {
		return "", nil
	}
	data, err := json.Marshal(j.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job result: %w", err)
	}
	return string(data), nil
}

// Validate checks the invariants a stored job must satisfy.
func (j *Job) Validate() error {
	if !j.Provider.IsValid() {
		return fmt.Errorf("unknown provider %q", j.Provider)
	}
	if !j.Action.IsValid() {
		return fmt.Errorf("unknown action %q", j.Action)
	}
	if j.Priority < 0 || j.Priority > 10 {
		return fmt.Errorf("priority %d out of range 0-10", j.Priority)
	}
	if j.RetryCount > j.MaxRetries {
		return fmt.Errorf("retry count %d exceeds max retries %d", j.RetryCount, j.MaxRetries)
	}
	if (j.LockID == nil) != (j.LockedAt == nil) {
		return fmt.Errorf("lock_id and locked_at must be set together")
	}
	if j.Status.IsTerminal() && j.LockID != nil {
		return fmt.Errorf("terminal job %d still holds a lock", j.ID)
	}
	return nil
}
