package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/fibreflow/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         application.Config.ListenAddr(),
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server, terminating TLS itself when cert and
// key paths are configured for a production environment
func (s *Server) Start() error {
	cfg := s.app.Config

	scheme := "http"
	if cfg.TLSEnabled() {
		scheme = "https"
	}

	s.app.Logger.Info().
		Str("address", cfg.ListenAddr()).
		Str("scheme", scheme).
		Msg("HTTP server starting")

	var err error
	if cfg.TLSEnabled() {
		err = s.server.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
