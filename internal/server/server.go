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

// Package server wires the trust core to the trustd admin API.
package server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-trustgate/internal/config"
	"github.com/jeremyhahn/go-trustgate/internal/rest"
	"github.com/jeremyhahn/go-trustgate/pkg/health"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
)

// Server is the trustd process: the trust core plus its admin API.
type Server struct {
	config *config.Config
	fs     afero.Fs
	logger *logging.Logger

	components   *Components
	pinnedClient *http.Client

	restServer       *rest.Server
	healthChecker    *health.Checker
	metricsCollector *metrics.ResourceCollector

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates a server on the OS filesystem.
func New(cfg *config.Config) (*Server, error) {
	return NewWithFs(cfg, afero.NewOsFs())
}

// NewWithFs creates a server whose data and security log live on fsys.
func NewWithFs(cfg *config.Config, fsys afero.Fs) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := logging.NewLoggerWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	components, err := NewComponents(cfg, fsys, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		fs:         fsys,
		logger:     logger,
		components: components,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}

	// Outbound API traffic is pinned; mismatches land in the security log.
	pinOpts := []pinning.Option{
		pinning.WithReporter(components.Events.PinReporter()),
		pinning.WithLogger(logger.With("component", "pinning")),
	}
	if cfg.Pinning.CAFile != "" {
		roots, err := loadRoots(fsys, cfg.Pinning.CAFile)
		if err != nil {
			cancel()
			_ = components.Close()
			return nil, err
		}
		pinOpts = append(pinOpts, pinning.WithRootCAs(roots))
	}
	s.pinnedClient, err = pinning.NewPinnedClient(components.Pins, pinOpts...)
	if err != nil {
		cancel()
		_ = components.Close()
		return nil, fmt.Errorf("failed to create pinned client: %w", err)
	}

	s.initializeHealth()

	if err := s.initializeREST(); err != nil {
		cancel()
		_ = components.Close()
		return nil, err
	}

	return s, nil
}

// loadRoots reads a PEM bundle of CA certificates from fsys.
func loadRoots(fsys afero.Fs, path string) (*x509.CertPool, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pinning ca_file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("pinning ca_file %s contains no PEM certificates", path)
	}
	return pool, nil
}

// getBuildVersion retrieves the version from build information
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.version" {
			if setting.Value != "" && setting.Value != "devel" {
				return setting.Value
			}
		}
		if setting.Key == "vcs.revision" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}

func (s *Server) initializeHealth() {
	s.healthChecker = health.NewChecker()
	s.healthChecker.RegisterCheck("secretstore", health.StoreCheck(s.components.Store))
	s.healthChecker.RegisterCheck("securitylog", health.AuditLogCheck(s.fs, s.config.SecurityLog.Dir))
}

func (s *Server) initializeREST() error {
	tlsConfig, err := s.config.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}
	token, err := s.config.Admin.ResolveToken()
	if err != nil {
		return err
	}

	metricsPath := ""
	if s.config.Metrics.Enabled {
		metricsPath = s.config.Metrics.Path
	}

	s.restServer, err = rest.NewServer(&rest.Config{
		Address:      s.config.Server.Address(),
		Version:      getBuildVersion(),
		Events:       s.components.Events,
		Lockout:      s.components.Lockout,
		Pins:         s.components.Pins,
		Store:        s.components.Store,
		Token:        token,
		Limiter:      s.components.Limiter,
		MetricsPath:  metricsPath,
		TLSConfig:    tlsConfig,
		Logger:       s.logger.With("component", "rest"),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}
	if s.config.Health.Enabled {
		s.restServer.SetHealthChecker(s.healthChecker)
	}
	return nil
}

// Start opens the secret store and begins serving the admin API. A key
// provider failure is not fatal: the store runs degraded and readiness
// reports it.
func (s *Server) Start() error {
	s.logger.Info("Starting trustd...")

	if s.config.Metrics.Enabled {
		metrics.Enable()
		s.metricsCollector = metrics.StartResourceCollector(s.ctx, 30*time.Second)
	} else {
		metrics.Disable()
	}

	if err := s.components.Store.Open(s.ctx); err != nil {
		return fmt.Errorf("failed to open secret store: %w", err)
	}
	st := s.components.Store.Status()
	if s.components.Store.Degraded() {
		s.logger.Warn("Secure storage unavailable, secrets are stored unencrypted",
			"provider", st.Provider, "reason", st.Reason)
	} else {
		s.logger.Info("Secret store opened", "provider", st.Provider, "algorithm", st.Algorithm)
	}

	if stats := s.components.Limiter.Stats(); stats["enabled"] == true {
		s.logger.Info("Rate limiting enabled",
			"rate_per_min", stats["rate_per_min"], "burst", stats["burst"])
	}

	s.wg.Add(1)
	go s.startREST()

	s.healthChecker.MarkStarted()
	s.logger.Info("trustd started", "address", s.restServer.Address())
	return nil
}

func (s *Server) startREST() {
	defer s.wg.Done()
	if err := s.restServer.Start(); err != nil {
		s.logger.Error(err)
	}
}

// Shutdown stops the admin API and closes the trust core. Safe to call
// more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down trustd...")
	s.healthChecker.MarkNotStarted()

	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
	}
	s.cancel()

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.restServer.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	if err := s.components.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close secret store: %w", err))
	}

	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// WaitForShutdown blocks until the server is shut down
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logging.DefaultLogger().Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// Components returns the trust core.
func (s *Server) Components() *Components {
	return s.components
}

// PinnedClient returns the HTTP client for outbound API calls.
func (s *Server) PinnedClient() *http.Client {
	return s.pinnedClient
}

// RESTServer returns the admin API server.
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// HealthChecker returns the probe backend.
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}
