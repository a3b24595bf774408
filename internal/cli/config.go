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

package cli

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-trustgate/internal/config"
	"github.com/jeremyhahn/go-trustgate/internal/server"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
)

// ConfigEnv names the variable consulted when --config is not given.
const ConfigEnv = "TRUSTGATE_CONFIG"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the trustd configuration used in local mode. Empty
	// falls back to $TRUSTGATE_CONFIG, then to the built-in defaults.
	ConfigFile string

	// Server is the trustd admin API base URL, e.g. https://127.0.0.1:8443.
	// When set, logs, lockout and pin commands go through the API instead
	// of opening the data directory.
	Server string

	// Token is the admin API bearer token
	Token string

	// TLSCACert is the path to the CA certificate file
	TLSCACert string

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool

	// Fs is the filesystem local mode reads and writes.
	Fs afero.Fs
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: string(OutputFormatText),
		Fs:           afero.NewOsFs(),
	}
}

// IsRemote returns true if commands should use the admin API.
func (c *Config) IsRemote() bool {
	return c.Server != ""
}

// LoadServerConfig resolves the trustd configuration for local mode.
func (c *Config) LoadServerConfig() (*config.Config, error) {
	path := c.ConfigFile
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

// logger returns a stderr logger that stays quiet unless --verbose.
func (c *Config) logger() *logging.Logger {
	level := "warn"
	if c.Verbose {
		level = "debug"
	}
	return logging.NewLoggerWithFormat(level, "text", os.Stderr)
}

// OpenComponents builds the trust core from the resolved configuration and
// opens its secret store. The caller closes the result.
func (c *Config) OpenComponents(ctx context.Context) (*server.Components, error) {
	cfg, err := c.LoadServerConfig()
	if err != nil {
		return nil, err
	}
	components, err := server.NewComponents(cfg, c.Fs, c.logger())
	if err != nil {
		return nil, err
	}
	if err := components.Store.Open(ctx); err != nil {
		_ = components.Close()
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	if components.Store.Degraded() {
		c.logger().Warn("secure storage unavailable, entries are read and written unencrypted",
			"reason", components.Store.Status().Reason)
	}
	return components, nil
}

// CreateClient returns an admin API client for Server.
func (c *Config) CreateClient() (*AdminClient, error) {
	if !c.IsRemote() {
		return nil, fmt.Errorf("no admin server configured")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return nil, fmt.Errorf("unsupported server URL %q: must start with http:// or https://", c.Server)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.TLSCACert != "" {
		// #nosec G304 - CA path from CLI flag
		pem, err := afero.ReadFile(c.Fs, c.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLSCACert)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &AdminClient{
		baseURL: strings.TrimRight(c.Server, "/"),
		token:   c.Token,
		http:    &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}, nil
}
