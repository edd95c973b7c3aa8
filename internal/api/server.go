// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/comps/internal/api/handler/api"
	"github.com/newthinker/comps/internal/api/job"
	"github.com/newthinker/comps/internal/api/middleware"
	"github.com/newthinker/comps/internal/app"
	"github.com/newthinker/comps/internal/metrics"
)

// Server represents the HTTP server for the comps API
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	jobs       *job.Store
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	JobTTL      time.Duration
	MaxJobs     int
	MetricsPath string // empty disables /metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, a *app.App, logger *zap.Logger) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("app is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}

	mux := http.NewServeMux()
	reg := a.Metrics()

	var h http.Handler = mux
	h = metrics.HTTPMiddleware(reg)(h)
	h = metrics.LoggingMiddleware(logger)(h)

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
		jobs:   job.NewStore(cfg.MaxJobs, cfg.JobTTL),
	}

	s.setupRoutes(cfg, a, reg)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, a *app.App, reg *metrics.Registry) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	comps := handler.NewCompsHandler(a, s.jobs, reg, s.logger.Named("api"))
	system := handler.NewSystemHandler(a)
	peers := handler.NewPeersHandler(a)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.Handle("GET /api/v1/comps", auth(http.HandlerFunc(comps.Analyze)))
	s.mux.Handle("GET /api/v1/comps/summary", auth(http.HandlerFunc(comps.Summary)))
	s.mux.Handle("POST /api/v1/comps/jobs", auth(http.HandlerFunc(comps.CreateJob)))
	s.mux.Handle("GET /api/v1/comps/jobs", auth(http.HandlerFunc(comps.ListJobs)))
	s.mux.Handle("GET /api/v1/comps/jobs/{id}", auth(http.HandlerFunc(comps.GetJob)))
	s.mux.Handle("GET /api/v1/peers", auth(http.HandlerFunc(peers.List)))
	s.mux.Handle("GET /api/v1/peers/{name}", auth(http.HandlerFunc(peers.Get)))
	s.mux.Handle("PUT /api/v1/peers/{name}", auth(http.HandlerFunc(peers.Put)))
	s.mux.Handle("DELETE /api/v1/peers/{name}", auth(http.HandlerFunc(peers.Remove)))
	s.mux.Handle("GET /api/v1/stats", auth(http.HandlerFunc(system.Stats)))
	s.mux.Handle("DELETE /api/v1/cache", auth(http.HandlerFunc(system.ClearCache)))

	if cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// PruneJobs drops expired jobs until ctx ends.
func (s *Server) PruneJobs(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.Prune(); n > 0 {
				s.logger.Debug("pruned expired jobs", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
