package models

import "time"

// HistoryDetailsMax caps the details column; longer strings are truncated on
// write so a verbose worker response cannot bloat the audit trail.
const HistoryDetailsMax = 2000

// JobHistoryEntry is one append-only audit row. One entry is written per
// state transition, in transition order.
type JobHistoryEntry struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// TruncateDetails trims s to HistoryDetailsMax runes.
func TruncateDetails(s string) string {
	if len(s) <= HistoryDetailsMax {
		return s
	}
	return s[:HistoryDetailsMax]
}
