package interfaces

import (
	"context"

	"github.com/ternarybob/fibreflow/internal/models"
)

// JobLogStorage manages per-job automation log persistence
type JobLogStorage interface {
	AppendLog(ctx context.Context, jobID int64, entry models.JobLogEntry) error
	AppendLogs(ctx context.Context, jobID int64, entries []models.JobLogEntry) error
	GetLogs(ctx context.Context, jobID int64, limit int) ([]models.JobLogEntry, error)
	GetLogsByLevel(ctx context.Context, jobID int64, level string, limit int) ([]models.JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID int64) error
	CountLogs(ctx context.Context, jobID int64) (int, error)
	Close() error
}
