package models

import "time"

// JobEvent is an in-memory broadcast of one state transition. Events feed
// the websocket stream and the prometheus counters; they are not persisted.
type JobEvent struct {
	JobID         int64     `json:"job_id"`
	ExternalJobID string    `json:"external_job_id,omitempty"`
	Provider      Provider  `json:"provider"`
	Action        Action    `json:"action"`
	OldStatus     JobStatus `json:"old_status"`
	NewStatus     JobStatus `json:"new_status"`
	Worker        string    `json:"worker,omitempty"`
	Details       string    `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
