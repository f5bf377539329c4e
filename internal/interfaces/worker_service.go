package interfaces

import (
	"context"

	"github.com/ternarybob/fibreflow/internal/models"
)

// WorkerDirectory tracks the configured worker pool and its availability
type WorkerDirectory interface {
	// Endpoints returns the configured execute URLs
	Endpoints() []string

	// HealthyEndpoints probes every endpoint and returns those that
	// answered their health check; falls back to the full configured
	// list when none respond
	HealthyEndpoints(ctx context.Context) []string

	// Select picks an endpoint for a job, sticky on the job id
	Select(jobID int64, pool []string) string

	// Snapshot returns endpoint -> "available"/"unavailable"
	Snapshot(ctx context.Context) map[string]string
}

// WorkerClient performs HTTP calls against a single worker endpoint
type WorkerClient interface {
	// Execute posts a job to the worker's execute URL. The response is
	// decoded only for 2xx answers; the HTTP status and raw body come
	// back either way so failures keep their diagnostics. A non-nil
	// error means the call itself failed (transport or decode).
	Execute(ctx context.Context, endpoint string, req *models.ExecuteRequest) (*models.ExecuteResponse, int, string, error)

	// JobStatus queries the worker's status endpoint for a job
	JobStatus(ctx context.Context, endpoint string, jobID int64) (*models.JobStatusResponse, error)
}
