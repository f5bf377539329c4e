// -----------------------------------------------------------------------
// Worker service - synchronous portal execution over HTTP
// -----------------------------------------------------------------------

package worker

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/worker/adapters"
)

// Service executes automation requests against provider portals and
// answers liveness and per-job status probes.
type Service struct {
	registry *adapters.Registry
	ledger   *Ledger
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a worker service.
func NewService(registry *adapters.Registry, ledger *Ledger, logger arbor.ILogger) *Service {
	return &Service{
		registry: registry,
		ledger:   ledger,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes returns the worker's HTTP mux.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.ExecuteHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/status/", s.StatusHandler)
	return mux
}

// ExecuteHandler runs one automation synchronously
// POST /execute
func (s *Service) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ExecuteResponse{
			Status: models.WorkerStatusError,
			Error:  "Invalid request body",
		})
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ExecuteResponse{
			Status: models.WorkerStatusError,
			JobID:  req.JobID,
			Error:  err.Error(),
		})
		return
	}
	if req.JobID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ExecuteResponse{
			Status: models.WorkerStatusError,
			Error:  "job_id is required",
		})
		return
	}

	params := NormalizeParameters(req.Provider, req.Parameters)
	if err := ValidateParameters(req.Provider, req.Action, params); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ExecuteResponse{
			Status: models.WorkerStatusError,
			JobID:  req.JobID,
			Error:  err.Error(),
		})
		return
	}

	s.logger.Info().
		Int64("job_id", req.JobID).
		Str("provider", string(req.Provider)).
		Str("action", string(req.Action)).
		Msg("Execution started")

	s.ledger.Begin(req.JobID)
	started := time.Now()

	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		s.failExecution(w, req.JobID, err.Error())
		return
	}

	result, err := adapter.Execute(r.Context(), req.Action, params)
	if err != nil {
		s.failExecution(w, req.JobID, err.Error())
		return
	}

	s.ledger.Finish(req.JobID, models.WorkerStatusSuccess, result, "")

	s.logger.Info().
		Int64("job_id", req.JobID).
		Str("provider", string(req.Provider)).
		Dur("duration", time.Since(started)).
		Msg("Execution finished")

	writeJSON(w, http.StatusOK, models.ExecuteResponse{
		Status: models.WorkerStatusSuccess,
		JobID:  req.JobID,
		Result: result,
	})
}

// failExecution records and reports a worker-signalled failure. The
// response stays 200; transport-level codes are reserved for requests
// the worker never accepted.
func (s *Service) failExecution(w http.ResponseWriter, jobID int64, errMsg string) {
	s.ledger.Finish(jobID, models.WorkerStatusError, nil, errMsg)

	s.logger.Warn().
		Int64("job_id", jobID).
		Str("error", errMsg).
		Msg("Execution failed")

	writeJSON(w, http.StatusOK, models.ExecuteResponse{
		Status: models.WorkerStatusError,
		JobID:  jobID,
		Error:  errMsg,
	})
}

// HealthHandler answers liveness probes
// GET /health
func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, models.WorkerHealth{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		ActiveJobs: s.ledger.ActiveCount(),
	})
}

// StatusHandler reports the execution state of one job from the ledger
// GET /status/{job_id}
func (s *Service) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/status/")
	jobID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid job id",
		})
		return
	}

	entry, ok := s.ledger.Get(jobID)
	if !ok {
		writeJSON(w, http.StatusOK, models.JobStatusResponse{
			JobID:  jobID,
			Status: models.WorkerStatusNotFound,
		})
		return
	}

	writeJSON(w, http.StatusOK, models.JobStatusResponse{
		JobID:  entry.JobID,
		Status: entry.Status,
		Result: entry.Result,
		Error:  entry.Error,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
