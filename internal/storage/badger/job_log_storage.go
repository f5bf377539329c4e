package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// logSequence guarantees unique keys when several log lines land within
// the same nanosecond
var logSequence uint64

// JobLogStorage implements the JobLogStorage interface for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

// AppendLog stores one automation log line for a job. Keys are
// composite (job id, timestamp, sequence) so inserts never collide.
func (s *JobLogStorage) AppendLog(ctx context.Context, jobID int64, entry models.JobLogEntry) error {
	entry.AssociatedJobID = jobID

	seq := atomic.AddUint64(&logSequence, 1)
	key := fmt.Sprintf("%d_%d_%d", jobID, time.Now().UnixNano(), seq)

	if err := s.db.Store().Insert(key, &entry); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// AppendLogs stores a batch of log lines for a job
func (s *JobLogStorage) AppendLogs(ctx context.Context, jobID int64, entries []models.JobLogEntry) error {
	for _, entry := range entries {
		if err := s.AppendLog(ctx, jobID, entry); err != nil {
			return err
		}
	}
	return nil
}

// GetLogs returns a job's log lines, newest first
func (s *JobLogStorage) GetLogs(ctx context.Context, jobID int64, limit int) ([]models.JobLogEntry, error) {
	var logs []models.JobLogEntry
	query := badgerhold.Where("AssociatedJobID").Eq(jobID).SortBy("FullTimestamp").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return logs, nil
}

// GetLogsByLevel returns a job's log lines at one level, newest first
func (s *JobLogStorage) GetLogsByLevel(ctx context.Context, jobID int64, level string, limit int) ([]models.JobLogEntry, error) {
	var logs []models.JobLogEntry
	query := badgerhold.Where("AssociatedJobID").Eq(jobID).And("Level").Eq(level).SortBy("FullTimestamp").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs by level: %w", err)
	}
	return logs, nil
}

// DeleteLogs removes every log line for a job
func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID int64) error {
	if err := s.db.Store().DeleteMatching(&models.JobLogEntry{}, badgerhold.Where("AssociatedJobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}

// CountLogs returns the number of stored log lines for a job
func (s *JobLogStorage) CountLogs(ctx context.Context, jobID int64) (int, error) {
	count, err := s.db.Store().Count(&models.JobLogEntry{}, badgerhold.Where("AssociatedJobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int(count), nil
}

// Close closes the underlying store
func (s *JobLogStorage) Close() error {
	return s.db.Close()
}
