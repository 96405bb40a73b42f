// Package server exposes a trained miner over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hed1ad/brminer/pkg/config"
	"github.com/hed1ad/brminer/pkg/detectors/brm"
	detio "github.com/hed1ad/brminer/pkg/io"
)

// ResultStore caches scoring results by request ID.
// GetResult returns an error wrapping redis.ErrNotFound for unknown IDs.
type ResultStore interface {
	SaveResult(ctx context.Context, id string, result detio.Result) error
	GetResult(ctx context.Context, id string) (*detio.Result, error)
}

// Server is the HTTP scoring service. Requests share one miner, so
// smoothed scores follow the order in which requests are served.
type Server struct {
	miner   *brm.Miner
	results ResultStore
	logger  *zap.Logger
	cfg     config.ServerConfig

	registry *prometheus.Registry
	metrics  *metrics
	limiter  *rate.Limiter
	router   *mux.Router

	seq atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithResultStore enables result caching and GET /results/{id}.
func WithResultStore(rs ResultStore) Option {
	return func(s *Server) {
		s.results = rs
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithConfig sets listen address, timeouts and rate limiting.
func WithConfig(cfg config.ServerConfig) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// New creates a Server for miner.
func New(miner *brm.Miner, opts ...Option) *Server {
	s := &Server{
		miner:  miner,
		logger: zap.NewNop(),
		cfg: config.ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = newMetrics(s.registry)

	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recovery, requestIDMiddleware, s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/classify", rateLimit(s.limiter, http.HandlerFunc(s.handleClassify))).Methods(http.MethodPost)
	r.HandleFunc("/schema", s.handleSchema).Methods(http.MethodGet)
	r.HandleFunc("/results/{id}", s.handleResult).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.cfg.Addr(),
		Handler:        s.router,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
