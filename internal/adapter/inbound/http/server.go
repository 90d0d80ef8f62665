package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
)

// Server serves the admin API, /health and /metrics on one listener.
type Server struct {
	server         *http.Server
	addr           string
	certFile       string
	keyFile        string
	allowedOrigins []string
	logger         *slog.Logger
	adminHandler   http.Handler
	healthChecker  *HealthChecker
	rateLimiter    *memory.RateLimiter
	registry       *prometheus.Registry
	metrics        *Metrics
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8545".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the browser origins allowed to call the admin
// API. If empty, every request carrying an Origin header is refused.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAdminHandler mounts h under /admin/api/.
func WithAdminHandler(h http.Handler) Option {
	return func(s *Server) { s.adminHandler = h }
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) { s.healthChecker = hc }
}

// WithRateLimiter reports the limiter's key count on /metrics.
func WithRateLimiter(rl *memory.RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithMetrics serves reg on /metrics and records requests into m. Without
// it the server creates its own registry.
func WithMetrics(reg *prometheus.Registry, m *Metrics) Option {
	return func(s *Server) {
		s.registry = reg
		s.metrics = m
	}
}

// NewRegistry returns a registry with the Go and process collectors
// and rolegate's metrics registered.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// NewServer creates a Server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:           "127.0.0.1:8545",
		allowedOrigins: []string{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil || s.metrics == nil {
		s.registry, s.metrics = NewRegistry()
	}
	return s
}

// Metrics returns the metrics the server records into.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler builds the routing tree. Admin requests pass, outermost first,
// through metrics, request id, real IP and origin checks.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.adminHandler != nil {
		var admin http.Handler = s.adminHandler
		admin = DNSRebindingProtection(s.allowedOrigins)(admin)
		admin = RealIPMiddleware(admin)
		admin = RequestIDMiddleware(s.logger)(admin)
		admin = MetricsMiddleware(s.metrics)(admin)
		mux.Handle("/admin/api/", admin)
	}

	if s.healthChecker != nil {
		mux.Handle("GET /health", s.healthChecker.Handler())
	} else {
		mux.Handle("GET /health", NewHealthChecker(nil, s.rateLimiter, "").Handler())
	}

	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
	mux.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter != nil {
			s.metrics.RateLimitKeys.Set(float64(s.rateLimiter.Size()))
		}
		metricsHandler.ServeHTTP(w, r)
	}))

	return mux
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsEnabled := s.certFile != "" && s.keyFile != ""
	if tlsEnabled {
		s.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsEnabled {
			s.logger.Info("starting HTTPS server", "addr", s.addr)
			err = s.server.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			s.logger.Info("starting HTTP server", "addr", s.addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
