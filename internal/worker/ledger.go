// -----------------------------------------------------------------------
// Ledger - in-memory record of jobs a worker has executed
// -----------------------------------------------------------------------

package worker

import (
	"sync"
	"time"

	"github.com/ternarybob/fibreflow/internal/models"
)

// LedgerEntry tracks one execution through the worker. Finished entries
// stay queryable until the retention TTL passes so the orchestrator's
// reconciliation poll can recover a lost response.
type LedgerEntry struct {
	JobID      int64                  `json:"job_id"`
	Status     string                 `json:"status"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// Ledger is the worker's execution memory. All methods are safe for
// concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[int64]*LedgerEntry
	ttl     time.Duration
}

// DefaultLedgerTTL is how long finished entries stay queryable.
const DefaultLedgerTTL = 15 * time.Minute

// NewLedger creates a ledger retaining finished entries for ttl.
func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &Ledger{
		entries: make(map[int64]*LedgerEntry),
		ttl:     ttl,
	}
}

// Begin records that execution of a job has started.
func (l *Ledger) Begin(jobID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(time.Now())
	l.entries[jobID] = &LedgerEntry{
		JobID:     jobID,
		Status:    models.WorkerStatusInProgress,
		StartedAt: time.Now(),
	}
}

// Finish records the outcome of a job execution.
func (l *Ledger) Finish(jobID int64, status string, result map[string]interface{}, errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[jobID]
	if !ok {
		entry = &LedgerEntry{JobID: jobID, StartedAt: time.Now()}
		l.entries[jobID] = entry
	}

	now := time.Now()
	entry.Status = status
	entry.Result = result
	entry.Error = errMsg
	entry.FinishedAt = &now
}

// Get returns a copy of the entry for a job, or false when the job is
// unknown or its entry has aged out.
func (l *Ledger) Get(jobID int64) (*LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(time.Now())

	entry, ok := l.entries[jobID]
	if !ok {
		return nil, false
	}

	clone := *entry
	return &clone, true
}

// ActiveCount returns the number of jobs currently executing.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, entry := range l.entries {
		if entry.Status == models.WorkerStatusInProgress {
			count++
		}
	}
	return count
}

// pruneLocked drops finished entries older than the TTL. Caller holds mu.
func (l *Ledger) pruneLocked(now time.Time) {
	for id, entry := range l.entries {
		if entry.FinishedAt != nil && now.Sub(*entry.FinishedAt) > l.ttl {
			delete(l.entries, id)
		}
	}
}
