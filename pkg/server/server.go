// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/llmgate/pkg/config"
	"github.com/pario-ai/llmgate/pkg/gateway"
)

// HealthChecker reports backend reachability for /health.
type HealthChecker interface {
	Health(ctx context.Context) bool
	Model() string
}

// Server is the llmgate HTTP front end.
type Server struct {
	cfg      *config.Config
	gw       *gateway.Gateway
	backend  HealthChecker
	logger   *zap.Logger
	throttle *loginThrottle
	router   chi.Router
}

// New creates a Server wired with all dependencies. gatherer backs
// /metrics/prometheus.
func New(cfg *config.Config, gw *gateway.Gateway, backend HealthChecker, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		gw:       gw,
		backend:  backend,
		logger:   logger,
		throttle: newLoginThrottle(cfg.Login.RPS, cfg.Login.Burst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.With(s.throttleLogin).Post("/auth/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/metrics", s.handleMetrics)
		r.Method(http.MethodGet, "/metrics/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		r.Route(s.versionPrefix(), func(r chi.Router) {
			r.Post("/infer", s.handleInfer)
			r.Post("/infer/stream", s.handleInferStream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
	return s
}

func (s *Server) versionPrefix() string {
	return "/" + strings.Trim(s.cfg.APIVersion, "/")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support. The login
// throttle janitor runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.throttle.Run(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("llmgate listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
