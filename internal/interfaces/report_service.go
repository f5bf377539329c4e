package interfaces

import (
	"context"

	"github.com/ternarybob/fibreflow/internal/models"
)

// ReportService delivers status callbacks to the upstream system.
// The job supplies identity fields (external id, provider, parameters);
// mappedStatus is the human-facing status line; result feeds the flat
// evidence bag.
type ReportService interface {
	ReportJobStatus(ctx context.Context, job *models.Job, mappedStatus string, result map[string]interface{}) error

	// ReportHealth posts an orchestrator liveness ping to the callback
	// endpoint. A no-op when reporting is disabled.
	ReportHealth(ctx context.Context) error
}
