// -----------------------------------------------------------------------
// Worker API - payloads exchanged between orchestrator and worker service
// -----------------------------------------------------------------------

package models

import "time"

// Worker execution outcome labels shared by /execute and /status responses.
const (
	WorkerStatusSuccess    = "success"
	WorkerStatusCompleted  = "completed"
	WorkerStatusError      = "error"
	WorkerStatusFailed     = "failed"
	WorkerStatusInProgress = "in_progress"
	WorkerStatusNotFound   = "not_found"
)

// ExecuteRequest is the payload the dispatcher POSTs to a worker's /execute
// endpoint. Parameters carry the client submission plus an injected
// external_job_id when the job has one.
type ExecuteRequest struct {
	JobID      int64                  `json:"job_id"`
	Provider   Provider               `json:"provider" validate:"required,oneof=mfn osn octotel evotel"`
	Action     Action                 `json:"action" validate:"required,oneof=validation cancellation"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ExecuteResponse is the synchronous worker reply. Status is success or
// error; Result is provider-defined and may carry screenshot_data.
type ExecuteResponse struct {
	Status string                 `json:"status"`
	JobID  int64                  `json:"job_id"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// InnerResultStatus digs the provider-level status out of a worker result.
// Workers report transport-level success with an inner failure when the
// automation itself could not complete.
func (r *ExecuteResponse) InnerResultStatus() string {
	if r.Result == nil {
		return ""
	}
	if s, ok := r.Result["status"].(string); ok {
		return s
	}
	return ""
}

// WorkerHealth is the /health reply.
type WorkerHealth struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	ActiveJobs int       `json:"active_jobs"`
}

// JobStatusResponse is the /status/<job_id> reply used by passive
// reconciliation.
type JobStatusResponse struct {
	JobID  int64                  `json:"job_id"`
	Status string                 `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}
