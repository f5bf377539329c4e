package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// MetricsStorage implements system metric sample persistence
type MetricsStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewMetricsStorage creates a new metrics storage instance
func NewMetricsStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.MetricsStorage {
	return &MetricsStorage{
		db:     db,
		logger: logger,
	}
}

// InsertSample stores one queue depth / worker availability sample
func (s *MetricsStorage) InsertSample(ctx context.Context, sample *models.MetricSample) error {
	workerJSON := "{}"
	if sample.WorkerStatus != nil {
		encoded, err := json.Marshal(sample.WorkerStatus)
		if err != nil {
			return fmt.Errorf("failed to serialize worker status: %w", err)
		}
		workerJSON = string(encoded)
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO system_metrics (timestamp, jobs_queued, jobs_running, jobs_completed, jobs_failed, worker_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts.Unix(), sample.JobsQueued, sample.JobsRunning, sample.JobsCompleted, sample.JobsFailed, workerJSON)
	if err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return nil
}

// RecentSamples returns samples taken at or after the given time,
// newest first
func (s *MetricsStorage) RecentSamples(ctx context.Context, since time.Time) ([]*models.MetricSample, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, timestamp, jobs_queued, jobs_running, jobs_completed, jobs_failed, worker_status
		FROM system_metrics
		WHERE timestamp >= ?
		ORDER BY timestamp DESC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query metric samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.MetricSample
	for rows.Next() {
		var (
			sample     models.MetricSample
			timestamp  int64
			workerJSON sql.NullString
		)
		if err := rows.Scan(&sample.ID, &timestamp, &sample.JobsQueued, &sample.JobsRunning,
			&sample.JobsCompleted, &sample.JobsFailed, &workerJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		sample.Timestamp = time.Unix(timestamp, 0)
		if workerJSON.Valid && workerJSON.String != "" {
			if err := json.Unmarshal([]byte(workerJSON.String), &sample.WorkerStatus); err != nil {
				return nil, fmt.Errorf("failed to decode worker status: %w", err)
			}
		}
		samples = append(samples, &sample)
	}
	return samples, rows.Err()
}

// PruneSamples deletes samples older than the cutoff, returning the
// number removed
func (s *MetricsStorage) PruneSamples(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM system_metrics WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune metric samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}
	return int(n), nil
}
