package models

import "time"

// MetricSample is one periodic snapshot of queue depth and worker health.
type MetricSample struct {
	ID            int64             `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	JobsQueued    int               `json:"jobs_queued"`
	JobsRunning   int               `json:"jobs_running"`
	JobsCompleted int               `json:"jobs_completed"`
	JobsFailed    int               `json:"jobs_failed"`
	WorkerStatus  map[string]string `json:"worker_status,omitempty"`
}

// MetricsSummary is the aggregate view returned by the metrics endpoint.
type MetricsSummary struct {
	Samples      []MetricSample `json:"samples"`
	AvgQueued    float64        `json:"avg_queued"`
	AvgRunning   float64        `json:"avg_running"`
	TotalSamples int            `json:"total_samples"`
	Since        time.Time      `json:"since"`
}
