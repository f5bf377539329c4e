package worker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/worker/adapters"
)

// Simulator outcomes are decided by the circuit number hash, so these
// fixtures always land in the same bucket.
const (
	circuitActive    = "CCT-3"  // plain active service
	circuitNotFound  = "CCT-20" // no service on the portal
	circuitCancelled = "CCT-23" // already cancelled
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	registry := adapters.NewRegistry(nil, true, logger)
	return NewService(registry, NewLedger(time.Minute), logger)
}

func execute(t *testing.T, svc *Service, req models.ExecuteRequest) (*httptest.ResponseRecorder, models.ExecuteResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.ExecuteHandler(rec, httptest.NewRequest("POST", "/execute", bytes.NewReader(body)))

	var resp models.ExecuteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestExecuteHandler_Success(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      11,
		Provider:   models.ProviderMFN,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": circuitActive},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkerStatusSuccess, resp.Status)
	assert.Equal(t, int64(11), resp.JobID)

	details := resp.Result["details"].(map[string]interface{})
	customer := details["customer_data"].(map[string]interface{})
	assert.Equal(t, "Simulated Customer 17", customer["customer"])

	// Evidence travels with the result
	shots := resp.Result[models.ScreenshotDataKey].([]interface{})
	require.Len(t, shots, 1)
	assert.Equal(t, "mfn_validation_result", shots[0].(map[string]interface{})["name"])
	assert.Equal(t, "https://portal.mfn.example.net", resp.Result["portal_url"])

	// The ledger remembers the finished execution
	entry, ok := svc.ledger.Get(11)
	require.True(t, ok)
	assert.Equal(t, models.WorkerStatusSuccess, entry.Status)
}

func TestExecuteHandler_InnerFailure(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      12,
		Provider:   models.ProviderOctotel,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-REJECT-1"},
	})

	// The worker answered, so the transport succeeds; the failure lives
	// inside the result
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkerStatusSuccess, resp.Status)
	assert.Equal(t, "failure", resp.Result["status"])
	assert.Contains(t, resp.Result["error"], "portal rejected")
}

func TestExecuteHandler_PortalFailure(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      13,
		Provider:   models.ProviderOSN,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-FAIL-1"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkerStatusError, resp.Status)
	assert.Contains(t, resp.Error, "simulated portal failure")

	entry, ok := svc.ledger.Get(13)
	require.True(t, ok)
	assert.Equal(t, models.WorkerStatusError, entry.Status)
	assert.Contains(t, entry.Error, "simulated portal failure")
}

func TestExecuteHandler_MethodNotAllowed(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.ExecuteHandler(rec, httptest.NewRequest("GET", "/execute", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExecuteHandler_InvalidBody(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.ExecuteHandler(rec, httptest.NewRequest("POST", "/execute", strings.NewReader("{broken")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ExecuteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.WorkerStatusError, resp.Status)
	assert.Equal(t, "Invalid request body", resp.Error)
}

func TestExecuteHandler_UnknownProvider(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      14,
		Provider:   "telkom",
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-1"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.WorkerStatusError, resp.Status)
}

func TestExecuteHandler_MissingJobID(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		Provider:   models.ProviderMFN,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-1"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "job_id is required", resp.Error)
}

func TestExecuteHandler_ParameterTable(t *testing.T) {
	svc := newTestService(t)

	// OSN cancellation needs a solution id on top of the circuit
	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      15,
		Provider:   models.ProviderOSN,
		Action:     models.ActionCancellation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "solution_id")

	rec, resp = execute(t, svc, models.ExecuteRequest{
		JobID:    16,
		Provider: models.ProviderOSN,
		Action:   models.ActionCancellation,
		Parameters: map[string]interface{}{
			"circuit_number": circuitActive,
			"solution_id":    "SOL-9",
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkerStatusSuccess, resp.Status)
}

func TestExecuteHandler_EvotelSerialAlias(t *testing.T) {
	svc := newTestService(t)

	rec, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      17,
		Provider:   models.ProviderEvotel,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"serial_number": circuitActive},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkerStatusSuccess, resp.Status)
}

func TestHealthHandler(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.HealthHandler(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health models.WorkerHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.ActiveJobs)

	rec = httptest.NewRecorder()
	svc.HealthHandler(rec, httptest.NewRequest("POST", "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	svc := newTestService(t)

	// Run one job so the ledger has something to answer with
	_, resp := execute(t, svc, models.ExecuteRequest{
		JobID:      21,
		Provider:   models.ProviderOctotel,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": circuitActive},
	})
	require.Equal(t, models.WorkerStatusSuccess, resp.Status)

	rec := httptest.NewRecorder()
	svc.StatusHandler(rec, httptest.NewRequest("GET", "/status/21", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, int64(21), status.JobID)
	assert.Equal(t, models.WorkerStatusSuccess, status.Status)
	assert.NotNil(t, status.Result)
}

func TestStatusHandler_UnknownJob(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.StatusHandler(rec, httptest.NewRequest("GET", "/status/404", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, models.WorkerStatusNotFound, status.Status)
}

func TestStatusHandler_BadJobID(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.StatusHandler(rec, httptest.NewRequest("GET", "/status/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes(t *testing.T) {
	svc := newTestService(t)
	server := httptest.NewServer(svc.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
