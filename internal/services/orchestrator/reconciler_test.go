package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
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
	"github.com/ternarybob/fibreflow/internal/services/reporter"
	"github.com/ternarybob/fibreflow/internal/services/workers"
	"github.com/ternarybob/fibreflow/internal/storage/sqlite"
)

// reconcileFixture drives the reconciler against real storage and an
// httptest worker that answers /status/<id> with canned replies. The
// raw db handle stays available so tests can age started_at directly.
type reconcileFixture struct {
	db      *sqlite.SQLiteDB
	jobs    interfaces.JobStorage
	history interfaces.HistoryStorage
	reports *reportRecorder
	rec     *Reconciler
	worker  string

	mu         sync.Mutex
	replies    map[int64]models.JobStatusResponse
	statusHits int64
}

func newReconcileFixture(t *testing.T, grace time.Duration) *reconcileFixture {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := sqlite.NewSQLiteDB(logger, &common.DatabaseConfig{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &reconcileFixture{
		db:      db,
		jobs:    sqlite.NewJobStorage(db, logger),
		history: sqlite.NewHistoryStorage(db, logger),
		replies: make(map[int64]models.JobStatusResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status/", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&f.statusHits, 1)
		id, _ := strconv.ParseInt(strings.TrimPrefix(req.URL.Path, "/status/"), 10, 64)
		f.mu.Lock()
		reply, ok := f.replies[id]
		f.mu.Unlock()
		if !ok {
			reply = models.JobStatusResponse{JobID: id, Status: models.WorkerStatusNotFound}
		}
		_ = json.NewEncoder(w).Encode(reply)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	f.worker = server.URL + "/execute"

	f.reports = newReportRecorder()
	t.Cleanup(f.reports.server.Close)

	reportSvc := reporter.NewService(&common.ReporterConfig{
		Endpoint: f.reports.server.URL,
		Timeout:  5 * time.Second,
	}, logger)

	client := workers.NewClient(2*time.Second, logger)

	config := &common.Config{
		Workers: common.WorkersConfig{Timeout: grace},
		Retry:   common.RetryConfig{Delay: 60 * time.Second},
	}
	f.rec = NewReconciler(f.jobs, client, reportSvc, nil, config, logger)

	return f
}

func (f *reconcileFixture) reply(jobID int64, resp models.JobStatusResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp.JobID = jobID
	f.replies[jobID] = resp
}

// runningJobAt creates a job and walks it to running with the given
// assigned worker endpoint, the state the reconciler polls.
func (f *reconcileFixture) runningJobAt(t *testing.T, endpoint string, maxRetries int) *models.Job {
	t.Helper()
	ctx := context.Background()

	job, err := f.jobs.CreateJob(ctx, &models.Job{
		Provider:   models.ProviderMFN,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-1"},
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)

	require.NoError(t, f.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusDispatching, &interfaces.UpdateOptions{
		AssignedWorker: &endpoint,
	}))
	require.NoError(t, f.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning, nil))
	return job
}

func (f *reconcileFixture) runningJob(t *testing.T, maxRetries int) *models.Job {
	return f.runningJobAt(t, f.worker, maxRetries)
}

// backdateStart ages started_at so the job falls outside the grace window
func (f *reconcileFixture) backdateStart(t *testing.T, id int64, age time.Duration) {
	t.Helper()
	_, err := f.db.DB().Exec("UPDATE job_queue SET started_at = ? WHERE id = ?",
		time.Now().Add(-age).Unix(), id)
	require.NoError(t, err)
}

func TestReconciler_RecoversCompletedResult(t *testing.T) {
	f := newReconcileFixture(t, 30*time.Second)
	ctx := context.Background()

	job := f.runningJob(t, 2)
	f.reply(job.ID, models.JobStatusResponse{
		Status: models.WorkerStatusCompleted,
		Result: map[string]interface{}{
			"details": map[string]interface{}{
				"customer_data": map[string]interface{}{"name": "J Soap"},
			},
		},
	})

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Contains(t, stored.Result, "details")

	require.Equal(t, 1, f.reports.count())
	payload := f.reports.last()
	assert.Equal(t, "Bitstream Validated", payload.Status)
	assert.Equal(t, stored.ReportJobID(), payload.JobID)

	entries, err := f.history.GetHistory(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recovered completed result from worker status poll", entries[len(entries)-1].Details)
}

func TestReconciler_RecoversWorkerFailure(t *testing.T) {
	f := newReconcileFixture(t, 30*time.Second)
	ctx := context.Background()

	job := f.runningJob(t, 2)
	f.reply(job.ID, models.JobStatusResponse{
		Status: models.WorkerStatusError,
		Error:  "browser session crashed",
	})

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, "browser session crashed", stored.Result["error"])
	assert.Equal(t, "error", stored.Result["automation_status"])

	require.Equal(t, 1, f.reports.count())
	assert.Equal(t, "Bitstream Validation System Error", f.reports.last().Status)
}

func TestReconciler_InProgressLeftAlone(t *testing.T) {
	f := newReconcileFixture(t, 30*time.Second)
	ctx := context.Background()

	job := f.runningJob(t, 2)
	f.reply(job.ID, models.JobStatusResponse{Status: models.WorkerStatusInProgress})

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
	assert.Equal(t, 0, f.reports.count())
}

func TestReconciler_FreshLostJobIgnored(t *testing.T) {
	f := newReconcileFixture(t, time.Hour)
	ctx := context.Background()

	// No canned reply: the worker answers not_found, but the job only
	// just started so the synchronous path still gets its chance
	job := f.runningJob(t, 2)

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Equal(t, 0, f.reports.count())
	assert.GreaterOrEqual(t, atomic.LoadInt64(&f.statusHits), int64(1))
}

func TestReconciler_LostJobRescheduled(t *testing.T) {
	f := newReconcileFixture(t, time.Minute)
	ctx := context.Background()

	job := f.runningJob(t, 2)
	f.backdateStart(t, job.ID, 2*time.Minute)

	before := time.Now()
	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRetryPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.ScheduledFor)
	assert.WithinDuration(t, before.Add(60*time.Second), *stored.ScheduledFor, 2*time.Second)
	assert.Equal(t, "worker lost track of job", stored.Result["error"])

	// A reschedule is internal bookkeeping, nothing to report yet
	assert.Equal(t, 0, f.reports.count())
}

func TestReconciler_LostJobExhausted(t *testing.T) {
	f := newReconcileFixture(t, time.Minute)
	ctx := context.Background()

	job := f.runningJob(t, 0)
	f.backdateStart(t, job.ID, 2*time.Minute)

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, stored.Status)
	assert.Equal(t, true, stored.Result["retries_exhausted"])
	require.NotNil(t, stored.CompletedAt)

	require.Equal(t, 1, f.reports.count())
	assert.Equal(t, "Bitstream Validation Error", f.reports.last().Status)
}

func TestReconciler_SkipsUnassignedJobs(t *testing.T) {
	f := newReconcileFixture(t, 30*time.Second)
	ctx := context.Background()

	job, err := f.jobs.CreateJob(ctx, &models.Job{
		Provider:   models.ProviderOSN,
		Action:     models.ActionValidation,
		Parameters: map[string]interface{}{"circuit_number": "CCT-2"},
		MaxRetries: 2,
	})
	require.NoError(t, err)
	require.NoError(t, f.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusDispatching, nil))

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDispatching, stored.Status)
	assert.Equal(t, int64(0), atomic.LoadInt64(&f.statusHits))
	assert.Equal(t, 0, f.reports.count())
}

func TestReconciler_UnreachableWorkerLeavesJobAlone(t *testing.T) {
	f := newReconcileFixture(t, 30*time.Second)
	ctx := context.Background()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := dead.URL + "/execute"
	dead.Close()

	job := f.runningJobAt(t, endpoint, 2)

	require.NoError(t, f.rec.Poll(ctx))

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
	assert.Equal(t, 0, f.reports.count())
}
