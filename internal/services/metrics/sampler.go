package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// Sampler snapshots queue depth and worker health on a schedule. Samples
// land in the system_metrics table for the API and in the prometheus
// gauges for scraping.
type Sampler struct {
	jobs      interfaces.JobStorage
	metrics   interfaces.MetricsStorage
	workers   interfaces.WorkerDirectory
	collector *Collector
	logger    arbor.ILogger
}

// NewSampler creates the metrics sampling service. collector may be nil
// when prometheus exposure is not wired.
func NewSampler(jobs interfaces.JobStorage, metrics interfaces.MetricsStorage, workers interfaces.WorkerDirectory, collector *Collector, logger arbor.ILogger) *Sampler {
	return &Sampler{
		jobs:      jobs,
		metrics:   metrics,
		workers:   workers,
		collector: collector,
		logger:    logger,
	}
}

// Sample records one snapshot.
func (s *Sampler) Sample(ctx context.Context) error {
	counts, err := s.jobs.CountJobsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count jobs by status: %w", err)
	}

	snapshot := s.workers.Snapshot(ctx)

	pending := counts[models.JobStatusPending] + counts[models.JobStatusRetryPending]
	running := counts[models.JobStatusDispatching] + counts[models.JobStatusRunning]

	sample := &models.MetricSample{
		Timestamp:     time.Now(),
		JobsQueued:    pending,
		JobsRunning:   running,
		JobsCompleted: counts[models.JobStatusCompleted],
		JobsFailed:    counts[models.JobStatusFailed] + counts[models.JobStatusError],
		WorkerStatus:  snapshot,
	}
	if err := s.metrics.InsertSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to store metric sample: %w", err)
	}

	if s.collector != nil {
		s.collector.SetQueueDepth(pending, running)
		available := 0
		for _, state := range snapshot {
			if state == "available" {
				available++
			}
		}
		s.collector.SetWorkersAvailable(available)
	}

	s.logger.Debug().
		Int("queued", pending).
		Int("running", running).
		Msg("Metric sample recorded")
	return nil
}

// Summary aggregates samples from the given window for the metrics
// endpoint.
func (s *Sampler) Summary(ctx context.Context, window time.Duration) (*models.MetricsSummary, error) {
	since := time.Now().Add(-window)
	samples, err := s.metrics.RecentSamples(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric samples: %w", err)
	}

	summary := &models.MetricsSummary{
		Samples:      make([]models.MetricSample, 0, len(samples)),
		TotalSamples: len(samples),
		Since:        since,
	}
	var queued, running int
	for _, sample := range samples {
		summary.Samples = append(summary.Samples, *sample)
		queued += sample.JobsQueued
		running += sample.JobsRunning
	}
	if len(samples) > 0 {
		summary.AvgQueued = float64(queued) / float64(len(samples))
		summary.AvgRunning = float64(running) / float64(len(samples))
	}
	return summary, nil
}
