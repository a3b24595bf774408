// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-trustgate/pkg/correlation"
	"github.com/jeremyhahn/go-trustgate/pkg/health"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/ratelimit"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
)

// Server is the admin API server.
type Server struct {
	server    *http.Server
	handlers  *HandlerContext
	addr      string
	tlsConfig *tls.Config
	token     string
	limiter   *ratelimit.Limiter
	metrics   string
	logger    *logging.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Address is the host:port to listen on (default: 127.0.0.1:8443)
	Address string

	// Version is reported by GET /health
	Version string

	// Events is the security event log served by /api/v1/security/logs (required)
	Events *securitylog.Log

	// Lockout backs /api/v1/lockout (required)
	Lockout *lockout.Engine

	// Pins is the active pin set
	Pins pinning.PinSet

	// Store reports the secret store mode (optional)
	Store health.StoreStatus

	// Token enables the /api/v1 routes. Empty leaves them unmounted.
	Token string

	// Limiter throttles every route except the probes (optional)
	Limiter *ratelimit.Limiter

	// MetricsPath mounts promhttp when non-empty
	MetricsPath string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	Logger *logging.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new admin API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Events == nil || cfg.Lockout == nil {
		return nil, fmt.Errorf("security log and lockout engine are required")
	}

	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8443"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	logger := logging.OrDefault(cfg.Logger)

	s := &Server{
		handlers: &HandlerContext{
			events:  cfg.Events,
			engine:  cfg.Lockout,
			pins:    cfg.Pins,
			store:   cfg.Store,
			version: cfg.Version,
			logger:  logger,
		},
		addr:      cfg.Address,
		tlsConfig: cfg.TLSConfig,
		token:     cfg.Token,
		limiter:   cfg.Limiter,
		metrics:   cfg.MetricsPath,
		logger:    logger,
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.setupRouter(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}

	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	// Probes stay outside the limiter so orchestrators are never throttled.
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	r.Group(func(r chi.Router) {
		if s.limiter.IsEnabled() {
			r.Use(ratelimit.MiddlewareWithHook(s.limiter, s.onRateLimited))
		}

		if s.metrics != "" {
			r.Handle(s.metrics, promhttp.Handler())
		}

		if s.token == "" {
			s.logger.Warn("admin token not configured; /api/v1 routes are disabled")
			return
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(s.AuthenticationMiddleware())

			r.Get("/security/logs", s.handlers.GetSecurityLogsHandler)
			r.Delete("/security/logs", s.handlers.ClearSecurityLogsHandler)

			r.Get("/lockout/{username}", s.handlers.GetLockoutHandler)
			r.Delete("/lockout/{username}", s.handlers.UnlockHandler)

			r.Get("/pins", s.handlers.PinsHandler)
			r.Get("/store", s.handlers.StoreHandler)
		})
	})

	return r
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, with TLS when configured.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "address", ln.Addr().String(), "admin_api", s.token != "")
		err = s.server.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("Starting HTTP server", "address", ln.Addr().String(), "admin_api", s.token != "")
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.addr
}

// SetHealthChecker sets the health checker for the server.
func (s *Server) SetHealthChecker(checker HealthChecker) {
	s.handlers.SetHealthChecker(checker)
}
