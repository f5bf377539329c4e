package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/events"
	"github.com/ternarybob/fibreflow/internal/services/metrics"
	"github.com/ternarybob/fibreflow/internal/services/reporter"
	"github.com/ternarybob/fibreflow/internal/services/workers"
	"github.com/ternarybob/fibreflow/internal/storage/sqlite"
)

// reportRecorder is an httptest upstream endpoint capturing every
// status payload the reporter posts
type reportRecorder struct {
	mu       sync.Mutex
	payloads []reporter.Payload
	server   *httptest.Server
}

func newReportRecorder() *reportRecorder {
	r := &reportRecorder{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload reporter.Payload
		if err := json.NewDecoder(req.Body).Decode(&payload); err == nil {
			r.mu.Lock()
			r.payloads = append(r.payloads, payload)
			r.mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	return r
}

func (r *reportRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *reportRecorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = p.Status
	}
	return out
}

func (r *reportRecorder) last() reporter.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[len(r.payloads)-1]
}

// dispatchRig wires a dispatcher over real storage and httptest
// endpoints for the worker and the upstream report sink
type dispatchRig struct {
	jobs       interfaces.JobStorage
	history    interfaces.HistoryStorage
	shots      interfaces.ScreenshotStorage
	dispatcher *Dispatcher
	pool       *workers.Pool
	reports    *reportRecorder
	workerHits *int64
}

func newDispatchRig(t *testing.T, workerHandler http.HandlerFunc) *dispatchRig {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := sqlite.NewSQLiteDB(logger, &common.DatabaseConfig{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobs := sqlite.NewJobStorage(db, logger)
	history := sqlite.NewHistoryStorage(db, logger)
	shots := sqlite.NewScreenshotStorage(db, logger)

	var endpoints []string
	var hits int64
	if workerHandler != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/execute", func(w http.ResponseWriter, req *http.Request) {
			atomic.AddInt64(&hits, 1)
			workerHandler(w, req)
		})
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)
		endpoints = []string{server.URL + "/execute"}
	}

	reports := newReportRecorder()
	t.Cleanup(reports.server.Close)

	directory := workers.NewDirectory(&common.WorkersConfig{
		Endpoints:     endpoints,
		HealthTimeout: time.Second,
	}, logger)
	client := workers.NewClient(5*time.Second, logger)
	pool := workers.NewPool(2, 0, logger)
	collector := metrics.NewCollector()
	eventSvc := events.NewService(logger)
	t.Cleanup(func() { eventSvc.Close() })

	reportSvc := reporter.NewService(&common.ReporterConfig{
		Endpoint: reports.server.URL,
		Timeout:  5 * time.Second,
	}, logger)

	retrier := NewRetryController(jobs, reportSvc, eventSvc, collector, &common.RetryConfig{
		Delay: 20 * time.Millisecond,
	}, logger)

	config := &common.Config{
		Dispatch: common.DispatchConfig{BatchSize: 10},
		Retry: common.RetryConfig{
			MaxAttempts: 2,
			MaxBackoff:  50 * time.Millisecond,
			Delay:       20 * time.Millisecond,
		},
	}

	dispatcher := NewDispatcher(jobs, nil, directory, client, retrier, reportSvc, eventSvc, pool, collector, config, logger)

	return &dispatchRig{
		jobs:       jobs,
		history:    history,
		shots:      shots,
		dispatcher: dispatcher,
		pool:       pool,
		reports:    reports,
		workerHits: &hits,
	}
}

func (rig *dispatchRig) createJob(t *testing.T, provider models.Provider, action models.Action, maxRetries int) *models.Job {
	t.Helper()
	job, err := rig.jobs.CreateJob(context.Background(), &models.Job{
		Provider:   provider,
		Action:     action,
		Parameters: map[string]interface{}{"circuit_number": "CCT-100"},
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	return job
}

// runCycle dispatches one batch and waits for the tasks to settle
func (rig *dispatchRig) runCycle(t *testing.T) int {
	t.Helper()
	n, err := rig.dispatcher.ProcessQueue(context.Background())
	require.NoError(t, err)
	rig.pool.Wait()
	return n
}

// runUntilTerminal drives dispatch cycles until the job settles,
// tolerating the retry delay between cycles
func (rig *dispatchRig) runUntilTerminal(t *testing.T, jobID int64) *models.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		rig.runCycle(t)

		job, err := rig.jobs.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		require.True(t, time.Now().Before(deadline), "job %d never settled, status %s", jobID, job.Status)
		time.Sleep(25 * time.Millisecond)
	}
}

func executeReply(w http.ResponseWriter, req *http.Request, result map[string]interface{}) {
	var incoming models.ExecuteRequest
	_ = json.NewDecoder(req.Body).Decode(&incoming)
	_ = json.NewEncoder(w).Encode(models.ExecuteResponse{
		Status: models.WorkerStatusSuccess,
		JobID:  incoming.JobID,
		Result: result,
	})
}

func TestDispatcher_CompletesValidationJob(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		executeReply(w, req, map[string]interface{}{
			"details": map[string]interface{}{
				"customer_data": map[string]interface{}{"name": "J Soap"},
			},
			models.ScreenshotDataKey: []interface{}{
				map[string]interface{}{
					"name":        "final_state",
					"base64_data": "QUFB",
					"mime_type":   "image/png",
				},
			},
		})
	})

	created := rig.createJob(t, models.ProviderMFN, models.ActionValidation, 2)

	submitted := rig.runCycle(t)
	assert.Equal(t, 1, submitted)

	job, err := rig.jobs.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotEmpty(t, job.GetAssignedWorker())
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	// Screenshot payload went to its own store, not the job row
	_, hasShots := job.Result[models.ScreenshotDataKey]
	assert.False(t, hasShots)
	count, err := rig.shots.CountScreenshots(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Exactly one report, mapped from the portal findings
	require.Equal(t, 1, rig.reports.count())
	payload := rig.reports.last()
	assert.Equal(t, "Bitstream Validated", payload.Status)
	assert.Equal(t, "MFN", payload.FNO)
	assert.Equal(t, job.ReportJobID(), payload.JobID)

	var evidence map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload.JobEvi), &evidence))
	assert.Equal(t, "true", evidence["service_found"])
	assert.Equal(t, "true", evidence["is_active"])
	assert.Equal(t, "J Soap", evidence["customer_name"])
	assert.Equal(t, "CCT-100", evidence["job_param_circuit_number"])

	// Full audit trail in order
	entries, err := rig.history.GetHistory(context.Background(), created.ID)
	require.NoError(t, err)
	statuses := make([]string, len(entries))
	for i, e := range entries {
		statuses[i] = e.Status
	}
	assert.Equal(t, []string{"created", "dispatching", "running", "completed"}, statuses)
}

func TestDispatcher_MapsImplementedCeaseOrder(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		executeReply(w, req, map[string]interface{}{
			"order_data": []interface{}{
				map[string]interface{}{
					"type":            "Cease Active Service",
					"orderStatus":     "Implemented",
					"orderNumber":     "ORD-55",
					"dateImplemented": "2025-11-30",
				},
			},
		})
	})

	created := rig.createJob(t, models.ProviderOSN, models.ActionValidation, 2)
	rig.runCycle(t)

	job, err := rig.jobs.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	require.Equal(t, 1, rig.reports.count())
	payload := rig.reports.last()
	assert.Equal(t, "Bitstream Already Cancelled", payload.Status)
	assert.Equal(t, "OSN", payload.FNO)

	var evidence map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload.JobEvi), &evidence))
	assert.Equal(t, "false", evidence["is_active"])
	assert.Equal(t, "ORD-55", evidence["cancellation_captured_id"])
	assert.Equal(t, "2025-11-30", evidence["cancellation_implementation_date"])
}

func TestDispatcher_MapsPendingCeaseOrder(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		executeReply(w, req, map[string]interface{}{
			"order_data": []interface{}{
				map[string]interface{}{
					"type":        "Cease Active Service",
					"orderStatus": "Pending",
					"orderNumber": "ORD-56",
				},
			},
		})
	})

	rig.createJob(t, models.ProviderOSN, models.ActionValidation, 2)
	rig.runCycle(t)

	require.Equal(t, 1, rig.reports.count())
	payload := rig.reports.last()
	assert.Equal(t, "Bitstream Cancellation Pending", payload.Status)

	var evidence map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload.JobEvi), &evidence))
	assert.Equal(t, "true", evidence["is_active"])
	assert.Equal(t, "true", evidence["pending_cease_order"])
}

func TestDispatcher_WorkerErrorParksJobAsFailed(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		var incoming models.ExecuteRequest
		_ = json.NewDecoder(req.Body).Decode(&incoming)
		_ = json.NewEncoder(w).Encode(models.ExecuteResponse{
			Status: models.WorkerStatusError,
			JobID:  incoming.JobID,
			Error:  "login failed: invalid credentials",
		})
	})

	created := rig.createJob(t, models.ProviderMFN, models.ActionValidation, 2)
	rig.runCycle(t)

	job, err := rig.jobs.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "error", job.Result["automation_status"])
	assert.Equal(t, "login failed: invalid credentials", job.Result["error"])

	// An answered error is not retried
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.workerHits))

	require.Equal(t, 1, rig.reports.count())
	assert.Equal(t, "Bitstream Validation Auth Error", rig.reports.last().Status)
}

func TestDispatcher_InnerFailureNotRetried(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		executeReply(w, req, map[string]interface{}{
			"status": "failure",
			"error":  "portal rejected the request",
		})
	})

	created := rig.createJob(t, models.ProviderOctotel, models.ActionValidation, 2)
	rig.runCycle(t)

	job, err := rig.jobs.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "failure", job.Result["automation_status"])
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.workerHits))

	require.Equal(t, 1, rig.reports.count())
	assert.Equal(t, "Bitstream Validation Portal Error", rig.reports.last().Status)
}

func TestDispatcher_RetriesExhaustedAfterWorkerRejections(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	created := rig.createJob(t, models.ProviderMFN, models.ActionValidation, 2)
	job := rig.runUntilTerminal(t, created.ID)

	// max_retries=2: first run plus two re-dispatches, then parked
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, true, job.Result["retries_exhausted"])
	assert.Contains(t, job.Result["error"], "500")
	assert.Equal(t, int64(3), atomic.LoadInt64(rig.workerHits))

	// Two retry reports plus the terminal one
	assert.Equal(t, []string{
		"Bitstream Validation Error",
		"Bitstream Validation Error",
		"Bitstream Validation Error",
	}, rig.reports.statuses())
}

func TestDispatcher_CancelledJobNeverDispatched(t *testing.T) {
	rig := newDispatchRig(t, func(w http.ResponseWriter, req *http.Request) {
		executeReply(w, req, map[string]interface{}{"found": true})
	})

	created := rig.createJob(t, models.ProviderEvotel, models.ActionValidation, 2)

	_, err := rig.jobs.CancelJob(context.Background(), created.ID)
	require.NoError(t, err)

	submitted := rig.runCycle(t)
	assert.Equal(t, 0, submitted)
	assert.Equal(t, int64(0), atomic.LoadInt64(rig.workerHits))
}

func TestDispatcher_NoWorkersConfigured(t *testing.T) {
	rig := newDispatchRig(t, nil)

	created := rig.createJob(t, models.ProviderMFN, models.ActionValidation, 2)
	rig.runCycle(t)

	job, err := rig.jobs.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Equal(t, "no workers configured", job.Result["error"])

	require.Equal(t, 1, rig.reports.count())
	assert.Equal(t, "Bitstream Validation Error", rig.reports.last().Status)
}
