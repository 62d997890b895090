// Package server is the HTTP adapter over the orchestrator's client API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/internal/server/handlers"
	"github.com/arcfield/jobforge/internal/server/middleware"
)

// Options configures the HTTP server.
type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the five job operations plus health and version endpoints.
type Server struct {
	opts   Options
	router chi.Router
	http   *http.Server
	logger *zap.Logger
}

// New wires the router. jobs may not be nil.
func New(opts Options, jobs *handlers.JobsHandler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health", handlers.Health)
	r.Get("/version", handlers.VersionInfo)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", jobs.Submit)
		r.Get("/", jobs.List)
		r.Get("/{jobID}", jobs.GetStatus)
		r.Get("/{jobID}/results", jobs.GetResults)
		r.Delete("/{jobID}", jobs.Terminate)
	})

	return &Server{
		opts:   opts,
		router: r,
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// ListenAndServe blocks until ctx is cancelled, then drains connections
// within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.Addr()))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apperrors.HTTPErrorResponse{
		Error: apperrors.HTTPErrorBody{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}
