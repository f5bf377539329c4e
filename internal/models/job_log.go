package models

import "time"

// JobLogEntry is one operational log line captured while a job is being
// dispatched or reconciled. Entries live in the badger log store, separate
// from the relational audit history.
//
// Timestamp format:
//   - Timestamp: "15:04:05.000" for display
//   - FullTimestamp: RFC3339Nano for stable sorting
type JobLogEntry struct {
	Timestamp       string `json:"timestamp"`
	FullTimestamp   string `json:"full_timestamp"`
	Level           string `json:"level" badgerhold:"index"`
	Message         string `json:"message"`
	AssociatedJobID int64  `json:"job_id" badgerhold:"index"`
}

// NewJobLogEntry stamps a log line for the given job.
func NewJobLogEntry(jobID int64, level, message string) JobLogEntry {
	now := time.Now()
	return JobLogEntry{
		Timestamp:       now.Format("15:04:05.000"),
		FullTimestamp:   now.Format(time.RFC3339Nano),
		Level:           level,
		Message:         message,
		AssociatedJobID: jobID,
	}
}
