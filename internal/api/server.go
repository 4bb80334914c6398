// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/replay/internal/api/handler/api"
	"github.com/newthinker/replay/internal/api/job"
	"github.com/newthinker/replay/internal/api/middleware"
	"github.com/newthinker/replay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP front end for submitting backtest jobs
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	backtests  *handler.BacktestHandler
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	APIKey  string
	MaxJobs int
	JobTTL  time.Duration
}

// Dependencies are the components the routes call into
type Dependencies struct {
	Runner  handler.Runner
	Metrics *metrics.Registry // optional; enables /metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("server: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:    logger,
		mux:       mux,
		backtests: handler.NewBacktestHandler(job.NewStore(cfg.MaxJobs, cfg.JobTTL), deps.Runner, logger),
	}

	s.setupRoutes(cfg.APIKey, deps.Metrics)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(apiKey string, reg *metrics.Registry) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if reg != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	auth := middleware.APIKeyAuth(apiKey)
	s.mux.Handle("GET /api/v1/strategies", auth(http.HandlerFunc(s.backtests.Strategies)))
	s.mux.Handle("POST /api/v1/backtests", auth(http.HandlerFunc(s.backtests.Create)))
	s.mux.Handle("GET /api/v1/backtests", auth(http.HandlerFunc(s.backtests.List)))
	s.mux.Handle("GET /api/v1/backtests/{id}", auth(http.HandlerFunc(s.backtests.Get)))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then waits for running jobs or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.backtests.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
