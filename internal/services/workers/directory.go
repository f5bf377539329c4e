package workers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/httpclient"
	"github.com/ternarybob/fibreflow/internal/interfaces"
)

// Directory tracks the configured worker endpoints and their health.
// Probes run per dispatch cycle rather than being cached, so a worker
// that just came back is used immediately.
type Directory struct {
	endpoints     []string
	healthTimeout time.Duration
	client        *http.Client
	logger        arbor.ILogger
}

// NewDirectory creates a worker directory over the configured pool
func NewDirectory(config *common.WorkersConfig, logger arbor.ILogger) interfaces.WorkerDirectory {
	timeout := config.HealthTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Directory{
		endpoints:     append([]string(nil), config.Endpoints...),
		healthTimeout: timeout,
		client:        httpclient.NewDefaultHTTPClient(timeout),
		logger:        logger,
	}
}

// HealthURL derives the health probe URL from an execute URL
func HealthURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/execute") {
		return strings.TrimSuffix(endpoint, "/execute") + "/health"
	}
	return strings.TrimRight(endpoint, "/") + "/health"
}

// StatusURL derives the per-job status URL from an execute URL
func StatusURL(endpoint string, jobID int64) string {
	base := endpoint
	if strings.HasSuffix(base, "/execute") {
		base = strings.TrimSuffix(base, "/execute")
	}
	return fmt.Sprintf("%s/status/%d", strings.TrimRight(base, "/"), jobID)
}

// Endpoints returns the configured execute URLs
func (d *Directory) Endpoints() []string {
	return append([]string(nil), d.endpoints...)
}

// HealthyEndpoints probes every endpoint concurrently and returns the
// responsive ones in configured order. When none respond it falls back
// to the full configured list; a worker may answer an execute even
// when its health endpoint is momentarily unreachable.
func (d *Directory) HealthyEndpoints(ctx context.Context) []string {
	if len(d.endpoints) == 0 {
		return nil
	}

	available := d.probeAll(ctx)

	healthy := make([]string, 0, len(d.endpoints))
	for i, endpoint := range d.endpoints {
		if available[i] {
			healthy = append(healthy, endpoint)
		}
	}

	if len(healthy) == 0 {
		d.logger.Warn().
			Int("configured", len(d.endpoints)).
			Msg("No workers answered health checks, falling back to full list")
		return d.Endpoints()
	}

	return healthy
}

// Select picks an endpoint for a job, sticky on the job id so retries
// land on the same worker while the pool is stable
func (d *Directory) Select(jobID int64, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	idx := int(jobID % int64(len(pool)))
	if idx < 0 {
		idx += len(pool)
	}
	return pool[idx]
}

// Snapshot returns endpoint -> "available"/"unavailable" for metrics
// and the workers introspection endpoint
func (d *Directory) Snapshot(ctx context.Context) map[string]string {
	snapshot := make(map[string]string, len(d.endpoints))
	if len(d.endpoints) == 0 {
		return snapshot
	}

	available := d.probeAll(ctx)
	for i, endpoint := range d.endpoints {
		if available[i] {
			snapshot[endpoint] = "available"
		} else {
			snapshot[endpoint] = "unavailable"
		}
	}
	return snapshot
}

// probeAll health-checks every endpoint concurrently, preserving
// configured order in the result
func (d *Directory) probeAll(ctx context.Context) []bool {
	available := make([]bool, len(d.endpoints))

	var wg sync.WaitGroup
	for i, endpoint := range d.endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			available[i] = d.probe(ctx, endpoint)
		}(i, endpoint)
	}
	wg.Wait()

	return available
}

func (d *Directory) probe(ctx context.Context, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, HealthURL(endpoint), nil)
	if err != nil {
		return false
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Worker health probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
