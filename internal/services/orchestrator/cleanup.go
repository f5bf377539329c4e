package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
)

// Cleaner enforces the evidence retention policy. Jobs that completed
// more than the retention period ago are purged: their evidence
// directory, screenshots, operational logs, history and queue row all
// go. Directories whose owning job is already gone are swept as
// orphans, which also covers a crash between row deletion and
// directory removal on a previous pass.
type Cleaner struct {
	jobs        interfaces.JobStorage
	jobLogs     interfaces.JobLogStorage
	metrics     interfaces.MetricsStorage
	evidenceDir string
	retention   time.Duration
	logger      arbor.ILogger
}

// NewCleaner creates the retention service.
func NewCleaner(jobs interfaces.JobStorage, jobLogs interfaces.JobLogStorage, metrics interfaces.MetricsStorage, config *common.Config, logger arbor.ILogger) *Cleaner {
	days := config.Evidence.RetentionDays
	if days <= 0 {
		days = 30
	}
	return &Cleaner{
		jobs:        jobs,
		jobLogs:     jobLogs,
		metrics:     metrics,
		evidenceDir: config.Evidence.Dir,
		retention:   time.Duration(days) * 24 * time.Hour,
		logger:      logger,
	}
}

// Run performs one cleanup pass.
func (c *Cleaner) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retention)

	expired, err := c.jobs.GetJobsCompletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find expired jobs: %w", err)
	}

	purged := 0
	for _, job := range expired {
		if err := c.purgeJob(ctx, job.ID); err != nil {
			c.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("Job purge failed")
			continue
		}
		purged++
	}

	orphans := c.sweepOrphanDirs(ctx)

	pruned, err := c.metrics.PruneSamples(ctx, cutoff)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Metric sample prune failed")
	}

	c.logger.Info().
		Int("jobs_purged", purged).
		Int("orphan_dirs", orphans).
		Int("samples_pruned", pruned).
		Msg("Cleanup pass finished")
	return nil
}

// purgeJob removes every trace of one job. The queue row goes last so a
// partial failure leaves the job discoverable for the next pass.
func (c *Cleaner) purgeJob(ctx context.Context, jobID int64) error {
	if c.jobLogs != nil {
		if err := c.jobLogs.DeleteLogs(ctx, jobID); err != nil {
			c.logger.Warn().Err(err).Int64("job_id", jobID).Msg("Job log delete failed")
		}
	}

	if err := c.jobs.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}

	dir := filepath.Join(c.evidenceDir, fmt.Sprintf("job_%d", jobID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove evidence dir %s: %w", dir, err)
	}

	c.logger.Debug().Int64("job_id", jobID).Msg("Expired job purged")
	return nil
}

// sweepOrphanDirs removes job_<id> evidence directories whose owning
// job row no longer exists. Returns the number removed.
func (c *Cleaner) sweepOrphanDirs(ctx context.Context) int {
	entries, err := os.ReadDir(c.evidenceDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("dir", c.evidenceDir).Msg("Evidence dir scan failed")
		}
		return 0
	}

	known, err := c.jobs.GetAllJobIDs(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Job id listing failed, skipping orphan sweep")
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job_") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(entry.Name(), "job_"), 10, 64)
		if err != nil {
			continue
		}
		if known[id] {
			continue
		}

		dir := filepath.Join(c.evidenceDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn().Err(err).Str("dir", dir).Msg("Orphan dir removal failed")
			continue
		}
		c.logger.Debug().Str("dir", dir).Msg("Orphan evidence dir removed")
		removed++
	}
	return removed
}
