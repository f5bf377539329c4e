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

// ScreenshotStorage implements evidence screenshot persistence
type ScreenshotStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewScreenshotStorage creates a new screenshot storage instance
func NewScreenshotStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ScreenshotStorage {
	return &ScreenshotStorage{
		db:     db,
		logger: logger,
	}
}

// SaveScreenshots persists extracted screenshots for a job. Entries
// missing a name or image data are skipped; re-delivered entries are
// deduplicated on (job_id, name). Returns the number saved.
func (s *ScreenshotStorage) SaveScreenshots(ctx context.Context, jobID int64, shots []models.Screenshot) (int, error) {
	now := time.Now()
	saved := 0
	for _, shot := range shots {
		if shot.Name == "" || shot.ImageData == "" {
			continue
		}
		if err := insertScreenshot(ctx, s.db.db, jobID, shot, now); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", jobID).Str("name", shot.Name).Msg("Failed to save screenshot")
			continue
		}
		saved++
	}
	return saved, nil
}

// GetScreenshots lists a job's screenshots; image payloads are omitted
// unless includeData is set
func (s *ScreenshotStorage) GetScreenshots(ctx context.Context, jobID int64, includeData bool) ([]*models.Screenshot, error) {
	dataCol := "''"
	if includeData {
		dataCol = "COALESCE(image_data, '')"
	}
	query := fmt.Sprintf(`
		SELECT id, job_id, name, mime_type, description, timestamp, %s
		FROM job_screenshots
		WHERE job_id = ?
		ORDER BY timestamp ASC, id ASC`, dataCol)

	rows, err := s.db.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screenshots: %w", err)
	}
	defer rows.Close()

	var shots []*models.Screenshot
	for rows.Next() {
		var (
			shot        models.Screenshot
			description sql.NullString
			timestamp   int64
		)
		if err := rows.Scan(&shot.ID, &shot.JobID, &shot.Name, &shot.MimeType, &description, &timestamp, &shot.ImageData); err != nil {
			return nil, fmt.Errorf("failed to scan screenshot row: %w", err)
		}
		if description.Valid {
			shot.Description = description.String
		}
		shot.Timestamp = time.Unix(timestamp, 0)
		shots = append(shots, &shot)
	}
	return shots, rows.Err()
}

// DeleteScreenshots removes all screenshots for a job
func (s *ScreenshotStorage) DeleteScreenshots(ctx context.Context, jobID int64) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM job_screenshots WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete screenshots: %w", err)
	}
	return nil
}

// CountScreenshots returns the number of stored screenshots for a job
func (s *ScreenshotStorage) CountScreenshots(ctx context.Context, jobID int64) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_screenshots WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count screenshots: %w", err)
	}
	return count, nil
}

// insertScreenshot writes one screenshot row, silently skipping
// duplicates of (job_id, name)
func insertScreenshot(ctx context.Context, db *sql.DB, jobID int64, shot models.Screenshot, at time.Time) error {
	if shot.Name == "" || shot.ImageData == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO job_screenshots (job_id, name, mime_type, description, timestamp, image_data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, name) DO NOTHING`,
		jobID, shot.Name, shot.MimeType, shot.Description, at.Unix(), shot.ImageData)
	return err
}
