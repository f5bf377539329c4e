package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// HistoryStorage implements the append-only job audit trail
type HistoryStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new history storage instance
func NewHistoryStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// AppendHistory appends one audit row for a job
func (s *HistoryStorage) AppendHistory(ctx context.Context, jobID int64, status, details string) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO job_history (job_id, status, timestamp, details)
		VALUES (?, ?, ?, ?)`,
		jobID, status, time.Now().Unix(), models.TruncateDetails(details))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// GetHistory returns a job's audit rows in ascending time order
func (s *HistoryStorage) GetHistory(ctx context.Context, jobID int64) ([]*models.JobHistoryEntry, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, job_id, status, timestamp, details
		FROM job_history
		WHERE job_id = ?
		ORDER BY timestamp ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.JobHistoryEntry
	for rows.Next() {
		var (
			entry     models.JobHistoryEntry
			timestamp int64
			details   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Status, &timestamp, &details); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entry.Timestamp = time.Unix(timestamp, 0)
		if details.Valid {
			entry.Details = details.String
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// appendHistoryTx writes an audit row inside an open transaction so a
// status change and its history land atomically
func appendHistoryTx(ctx context.Context, tx *sql.Tx, jobID int64, status, details string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO job_history (job_id, status, timestamp, details)
		VALUES (?, ?, ?, ?)`,
		jobID, status, at.Unix(), models.TruncateDetails(details))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}
