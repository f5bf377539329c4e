// -----------------------------------------------------------------------
// Storage Interfaces - Persistence contracts for the job queue
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/fibreflow/internal/models"
)

// ErrJobNotFound is returned when a job id or external id matches no row
var ErrJobNotFound = errors.New("job not found")

// ErrNotCancellable is returned when cancellation is requested for a job
// that is already terminal
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrInvalidTransition is returned when a status write would violate the
// job state machine
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUserNotFound is returned when a username matches no account
var ErrUserNotFound = errors.New("user not found")

// UpdateOptions carries the optional fields of a status update.
type UpdateOptions struct {
	Result         map[string]interface{}
	Evidence       []string
	AssignedWorker *string
	Details        string
	ScheduledFor   *time.Time
	BumpRetry      bool
}

// JobStorage - interface for job queue persistence
type JobStorage interface {
	// Lifecycle operations
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetJobByExternalID(ctx context.Context, externalID string) (*models.Job, error)
	ListJobs(ctx context.Context, statusFilter string, limit, offset int) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus, opts *UpdateOptions) error
	UpdateJobFields(ctx context.Context, id int64, fields map[string]interface{}) error
	CancelJob(ctx context.Context, id int64) (*models.Job, error)
	DeleteJob(ctx context.Context, id int64) error

	// Queue operations
	GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error)
	GetJobsByStatuses(ctx context.Context, statuses []models.JobStatus) ([]*models.Job, error)
	AcquireLock(ctx context.Context, id int64, lockID string) (bool, error)
	ReleaseLock(ctx context.Context, id int64, lockID string, status models.JobStatus, opts *UpdateOptions) (bool, error)
	RecoverStaleLocks(ctx context.Context, maxAge time.Duration) (int, error)

	// Stats and retention operations
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	GetAllJobIDs(ctx context.Context) (map[int64]bool, error)
	GetJobsCompletedBefore(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
}

// HistoryStorage - interface for the append-only job audit trail
type HistoryStorage interface {
	AppendHistory(ctx context.Context, jobID int64, status, details string) error
	GetHistory(ctx context.Context, jobID int64) ([]*models.JobHistoryEntry, error)
}

// ScreenshotStorage - interface for job evidence screenshots
type ScreenshotStorage interface {
	SaveScreenshots(ctx context.Context, jobID int64, shots []models.Screenshot) (int, error)
	GetScreenshots(ctx context.Context, jobID int64, includeData bool) ([]*models.Screenshot, error)
	DeleteScreenshots(ctx context.Context, jobID int64) error
	CountScreenshots(ctx context.Context, jobID int64) (int, error)
}

// MetricsStorage - interface for system metric samples
type MetricsStorage interface {
	InsertSample(ctx context.Context, sample *models.MetricSample) error
	RecentSamples(ctx context.Context, since time.Time) ([]*models.MetricSample, error)
	PruneSamples(ctx context.Context, cutoff time.Time) (int, error)
}

// UserStorage - interface for API user accounts
type UserStorage interface {
	CreateUser(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	VerifyPassword(ctx context.Context, username, password string) (bool, error)
	TouchLogin(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	DisableUser(ctx context.Context, username string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	HistoryStorage() HistoryStorage
	ScreenshotStorage() ScreenshotStorage
	MetricsStorage() MetricsStorage
	UserStorage() UserStorage
	Close() error
}
