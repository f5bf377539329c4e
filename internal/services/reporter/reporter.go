// -----------------------------------------------------------------------
// External reporter - posts terminal and retry statuses upstream
// -----------------------------------------------------------------------

package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/httpclient"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
)

// Payload is the document posted to the upstream status endpoint.
type Payload struct {
	JobID    string `json:"JOB_ID"`
	FNO      string `json:"FNO"`
	Status   string `json:"STATUS"`
	StatusDT string `json:"STATUS_DT"`
	JobEvi   string `json:"JOB_EVI"`
}

const statusTimeFormat = "2006/01/02 15:04:05"

// Service posts job status reports to the configured callback endpoint.
// Terminal statuses are reported once per (job, status); retry statuses
// are reported every time they occur.
type Service struct {
	config   *common.ReporterConfig
	client   *http.Client
	logger   arbor.ILogger
	mu       sync.Mutex
	reported map[string]bool
}

// NewService creates the external reporter. An empty endpoint disables
// reporting entirely.
func NewService(config *common.ReporterConfig, logger arbor.ILogger) interfaces.ReportService {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		config:   config,
		client:   httpclient.NewDefaultHTTPClient(timeout),
		logger:   logger,
		reported: make(map[string]bool),
	}
}

// ReportJobStatus posts one status document for the job. The post is a
// single attempt; a non-2xx response or transport error is logged and
// dropped, the authoritative state is already in the store. job.Status
// must reflect the transition being reported so the terminal dedupe
// guard can key on it.
func (s *Service) ReportJobStatus(ctx context.Context, job *models.Job, mappedStatus string, result map[string]interface{}) error {
	if s.config.Endpoint == "" {
		return nil
	}

	// Passive reconciliation can re-derive a terminal transition the
	// dispatch path already reported. Suppress the duplicate; transient
	// retry reports always go out.
	if job.Status.IsTerminal() {
		key := fmt.Sprintf("%d|%s", job.ID, mappedStatus)
		s.mu.Lock()
		if s.reported[key] {
			s.mu.Unlock()
			s.logger.Debug().
				Int64("job_id", job.ID).
				Str("status", mappedStatus).
				Msg("Skipping duplicate terminal report")
			return nil
		}
		s.reported[key] = true
		s.mu.Unlock()
	}

	canonical := standardize.Standardize(job.Provider, result)
	evidence := BuildEvidence(job, canonical, result)
	eviJSON, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence bag: %w", err)
	}

	payload := Payload{
		JobID:    job.ReportJobID(),
		FNO:      strings.ToUpper(string(job.Provider)),
		Status:   mappedStatus,
		StatusDT: time.Now().Format(statusTimeFormat),
		JobEvi:   string(eviJSON),
	}

	httpStatus, _, err := httpclient.PostJSON(ctx, s.client, s.config.Endpoint, payload, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int64("job_id", job.ID).
			Str("status", mappedStatus).
			Msg("External report failed")
		return nil
	}
	if httpStatus < 200 || httpStatus >= 300 {
		s.logger.Warn().
			Int64("job_id", job.ID).
			Int("http_status", httpStatus).
			Str("status", mappedStatus).
			Msg("External report rejected")
		return nil
	}

	s.logger.Info().
		Int64("job_id", job.ID).
		Str("report_job_id", payload.JobID).
		Str("fno", payload.FNO).
		Str("status", mappedStatus).
		Msg("External report sent")
	return nil
}

// ReportHealth posts a liveness ping so the upstream system can tell a
// quiet orchestrator from a dead one.
func (s *Service) ReportHealth(ctx context.Context) error {
	if s.config.Endpoint == "" {
		return nil
	}

	payload := map[string]string{
		"status":    "healthy",
		"service":   "fibreflow-orchestrator",
		"version":   common.GetVersion(),
		"timestamp": time.Now().Format(statusTimeFormat),
	}

	httpStatus, _, err := httpclient.PostJSON(ctx, s.client, s.config.Endpoint, payload, nil)
	if err != nil {
		return fmt.Errorf("health report failed: %w", err)
	}
	if httpStatus < 200 || httpStatus >= 300 {
		return fmt.Errorf("health report rejected with status %d", httpStatus)
	}

	s.logger.Debug().Msg("Health report sent")
	return nil
}
