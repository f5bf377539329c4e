package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job lifecycle
	mux.HandleFunc("/jobs", s.handleJobCollection)  // GET (list), POST (submit)
	mux.HandleFunc("/jobs/", s.handleJobRoutes)     // GET/PATCH/DELETE /{id} and subpaths
	mux.HandleFunc("/history/", s.app.JobHandler.HistoryHandler)

	// Queue operations
	mux.HandleFunc("/process", s.app.SystemHandler.ProcessHandler)
	mux.HandleFunc("/recover", s.app.SystemHandler.RecoverHandler)

	// Scheduler
	mux.HandleFunc("/scheduler", s.app.SystemHandler.SchedulerStatusHandler)
	mux.HandleFunc("/scheduler/reset", s.app.SystemHandler.SchedulerResetHandler)

	// Metrics (JSON summary plus prometheus exposition)
	mux.HandleFunc("/metrics", s.app.SystemHandler.MetricsHandler)
	mux.Handle("/metrics/prometheus", s.app.Collector.Handler())

	// System
	mux.HandleFunc("/health", s.app.SystemHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.SystemHandler.VersionHandler)
	mux.HandleFunc("/workers", s.app.SystemHandler.WorkersHandler)

	// WebSocket event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// JSON 404 for everything unmatched
	mux.HandleFunc("/", s.app.SystemHandler.NotFoundHandler)

	return mux
}

// handleJobCollection routes /jobs requests (list and submit)
func (s *Server) handleJobCollection(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes /jobs/{id} requests and subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	// GET /jobs/{id}/screenshots and GET /jobs/{id}/logs
	handled := RouteByPathSuffix(w, r, "/jobs/", []PathSuffixRouter{
		{Suffix: "/screenshots", Method: http.MethodGet, Handler: s.app.JobHandler.ScreenshotsHandler},
		{Suffix: "/logs", Method: http.MethodGet, Handler: s.app.JobHandler.LogsHandler},
	})
	if handled {
		return
	}

	// /jobs/{id}
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:    s.app.JobHandler.GetJobHandler,
		http.MethodPatch:  s.app.JobHandler.UpdateJobHandler,
		http.MethodDelete: s.app.JobHandler.CancelJobHandler,
	})
}
