package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db          *SQLiteDB
	jobs        interfaces.JobStorage
	history     interfaces.HistoryStorage
	screenshots interfaces.ScreenshotStorage
	metrics     interfaces.MetricsStorage
	users       interfaces.UserStorage
	logger      arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.DatabaseConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:          db,
		jobs:        NewJobStorage(db, logger),
		history:     NewHistoryStorage(db, logger),
		screenshots: NewScreenshotStorage(db, logger),
		metrics:     NewMetricsStorage(db, logger),
		users:       NewUserStorage(db, logger),
		logger:      logger,
	}, nil
}

// JobStorage returns the job queue storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// HistoryStorage returns the audit trail storage interface
func (m *Manager) HistoryStorage() interfaces.HistoryStorage {
	return m.history
}

// ScreenshotStorage returns the evidence screenshot storage interface
func (m *Manager) ScreenshotStorage() interfaces.ScreenshotStorage {
	return m.screenshots
}

// MetricsStorage returns the metric sample storage interface
func (m *Manager) MetricsStorage() interfaces.MetricsStorage {
	return m.metrics
}

// UserStorage returns the API user storage interface
func (m *Manager) UserStorage() interfaces.UserStorage {
	return m.users
}

// DB returns the underlying connection wrapper
func (m *Manager) DB() *SQLiteDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
