package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/httpclient"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// Client performs execute and status calls against worker endpoints
type Client struct {
	http   *http.Client
	logger arbor.ILogger
}

// NewClient creates a worker client with the execute timeout applied
// to every call
func NewClient(timeout time.Duration, logger arbor.ILogger) interfaces.WorkerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:   httpclient.NewDefaultHTTPClient(timeout),
		logger: logger,
	}
}

// Execute posts a job to a worker's execute URL
func (c *Client) Execute(ctx context.Context, endpoint string, req *models.ExecuteRequest) (*models.ExecuteResponse, int, string, error) {
	status, raw, err := httpclient.PostJSON(ctx, c.http, endpoint, req, nil)
	if err != nil {
		return nil, status, string(raw), err
	}

	if status < 200 || status >= 300 {
		return nil, status, string(raw), nil
	}

	var resp models.ExecuteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, status, string(raw), fmt.Errorf("failed to decode worker response: %w", err)
	}

	return &resp, status, string(raw), nil
}

// JobStatus queries a worker's status endpoint for a job
func (c *Client) JobStatus(ctx context.Context, endpoint string, jobID int64) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	status, _, err := httpclient.GetJSON(ctx, c.http, StatusURL(endpoint, jobID), &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("worker status returned %d", status)
	}

	return &resp, nil
}
