package models

import "time"

// CreateJobRequest is the public API submission body.
type CreateJobRequest struct {
	ExternalJobID string                 `json:"external_job_id,omitempty"`
	Provider      Provider               `json:"provider" validate:"required,oneof=mfn osn octotel evotel"`
	Action        Action                 `json:"action" validate:"required,oneof=validation cancellation"`
	Parameters    map[string]interface{} `json:"parameters" validate:"required"`
	Priority      int                    `json:"priority" validate:"gte=0,lte=10"`
	MaxRetries    *int                   `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	ScheduledFor  *time.Time             `json:"scheduled_for,omitempty"`
}

// ToJob materializes a pending job from the request. The store assigns the
// id and timestamps on insert.
func (r *CreateJobRequest) ToJob() *Job {
	maxRetries := DefaultMaxRetries
	if r.MaxRetries != nil {
		maxRetries = *r.MaxRetries
	}
	params := r.Parameters
	if params == nil {
		params = make(map[string]interface{})
	}
	return &Job{
		ExternalJobID: r.ExternalJobID,
		Provider:      r.Provider,
		Action:        r.Action,
		Parameters:    params,
		Priority:      r.Priority,
		MaxRetries:    maxRetries,
		ScheduledFor:  r.ScheduledFor,
		Status:        JobStatusPending,
	}
}

// UpdateJobRequest is the admin PATCH body. Nil fields are left untouched.
type UpdateJobRequest struct {
	Status   *JobStatus             `json:"status,omitempty" validate:"omitempty,oneof=pending retry_pending dispatching running completed failed error cancelled"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Evidence []string               `json:"evidence,omitempty"`
}
