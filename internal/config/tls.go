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

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig configures TLS for the admin API listener.
type TLSConfig struct {
	Enabled      bool     `yaml:"enabled"`
	CertFile     string   `yaml:"cert_file"`
	KeyFile      string   `yaml:"key_file"`
	CAFile       string   `yaml:"ca_file"`
	ClientAuth   string   `yaml:"client_auth"` // none, request, require, verify, require_and_verify
	ClientCAs    []string `yaml:"client_cas"`
	MinVersion   string   `yaml:"min_version"` // TLS1.2, TLS1.3
	MaxVersion   string   `yaml:"max_version"`
	CipherSuites []string `yaml:"cipher_suites"`
}

// LoadTLSConfig builds the admin listener's tls.Config. A disabled section
// yields nil, nil.
func (cfg *TLSConfig) LoadTLSConfig() (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	minVersion := uint16(tls.VersionTLS12)
	if cfg.MinVersion != "" {
		if minVersion, err = parseTLSVersion(cfg.MinVersion); err != nil {
			return nil, fmt.Errorf("min_version: %w", err)
		}
	}

	// #nosec G402 - MinVersion is never below TLS 1.2
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}

	if cfg.MaxVersion != "" {
		maxVersion, err := parseTLSVersion(cfg.MaxVersion)
		if err != nil {
			return nil, fmt.Errorf("max_version: %w", err)
		}
		if maxVersion < minVersion {
			return nil, fmt.Errorf("max_version %s is below min_version", cfg.MaxVersion)
		}
		tlsConfig.MaxVersion = maxVersion
	}

	if len(cfg.CipherSuites) > 0 {
		suites, err := parseCipherSuites(cfg.CipherSuites)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cipher suites: %w", err)
		}
		tlsConfig.CipherSuites = suites
	}

	if cfg.ClientAuth != "" && cfg.ClientAuth != "none" {
		clientAuth, err := parseClientAuthType(cfg.ClientAuth)
		if err != nil {
			return nil, fmt.Errorf("invalid client_auth value: %w", err)
		}
		tlsConfig.ClientAuth = clientAuth

		if cfg.CAFile != "" || len(cfg.ClientCAs) > 0 {
			pool, err := loadCertPool(append([]string{cfg.CAFile}, cfg.ClientCAs...))
			if err != nil {
				return nil, fmt.Errorf("failed to load client CA certificates: %w", err)
			}
			tlsConfig.ClientCAs = pool
		}
	}

	return tlsConfig, nil
}

var tlsVersions = map[string]uint16{
	"TLS1.2": tls.VersionTLS12, "1.2": tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13, "1.3": tls.VersionTLS13,
}

// parseTLSVersion accepts TLS1.2 and TLS1.3. Older protocol versions are
// refused outright.
func parseTLSVersion(version string) (uint16, error) {
	if v, ok := tlsVersions[version]; ok {
		return v, nil
	}
	switch version {
	case "TLS1.0", "TLS1.1", "1.0", "1.1":
		return 0, fmt.Errorf("TLS version %s is not supported", version)
	}
	return 0, fmt.Errorf("unknown TLS version: %s", version)
}

var clientAuthModes = map[string]tls.ClientAuthType{
	"":                   tls.NoClientCert,
	"none":               tls.NoClientCert,
	"request":            tls.RequestClientCert,
	"require":            tls.RequireAnyClientCert,
	"verify":             tls.VerifyClientCertIfGiven,
	"require_and_verify": tls.RequireAndVerifyClientCert,
}

func parseClientAuthType(mode string) (tls.ClientAuthType, error) {
	if t, ok := clientAuthModes[mode]; ok {
		return t, nil
	}
	return tls.NoClientCert, fmt.Errorf("unknown client auth type: %s", mode)
}

// cipherSuites lists the AEAD suites the admin listener may be restricted to.
var cipherSuites = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
}

func parseCipherSuites(names []string) ([]uint16, error) {
	ids := make([]uint16, len(names))
	for i, name := range names {
		var ok bool
		if ids[i], ok = cipherSuites[name]; !ok {
			return nil, fmt.Errorf("unknown cipher suite: %s", name)
		}
	}
	return ids, nil
}

// loadCertPool reads every non-empty path into one pool.
func loadCertPool(paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - CA paths come from operator configuration
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", path)
		}
	}
	return pool, nil
}
