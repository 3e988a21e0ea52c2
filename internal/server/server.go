package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/app"
)

// workerWriteMargin is added to the execution timeout so a run that uses
// its whole budget can still write its response.
const workerWriteMargin = 15 * time.Second

// Server manages the HTTP server and routes
type Server struct {
	name   string
	addr   string
	logger arbor.ILogger
	router *http.ServeMux
	server *http.Server
}

// New creates the orchestrator HTTP server
func New(application *app.App) *Server {
	s := &Server{
		name:   "orchestrator",
		addr:   fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port),
		logger: application.Logger,
	}

	s.router = s.setupRoutes(application)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// NewWorker creates the browser worker HTTP server. Runs hold the
// connection for up to the execution timeout.
func NewWorker(application *app.WorkerApp) *Server {
	s := &Server{
		name:   "worker",
		addr:   fmt.Sprintf("%s:%d", application.Config.Worker.Host, application.Config.Worker.Port),
		logger: application.Logger,
	}

	s.router = s.setupWorkerRoutes(application)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: app.WorkerExecutionTimeout(application.Config) + workerWriteMargin,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("server", s.name).
		Str("address", s.addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Str("server", s.name).Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Str("server", s.name).Msg("HTTP server stopped")
	return nil
}
