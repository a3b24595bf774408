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

// Package config loads the trustd configuration file, applies environment
// overrides and validates the result.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-trustgate/pkg/crypto/aead"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/ratelimit"
)

// Key provider types.
const (
	KeyProviderFile    = "file"
	KeyProviderKeyring = "keyring"
	KeyProviderAWSKMS  = "awskms"
	KeyProviderGCPKMS  = "gcpkms"
	KeyProviderAzureKV = "azurekv"
	KeyProviderVault   = "vault"
	KeyProviderStatic  = "static"
	KeyProviderNone    = "none"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config represents the complete trustd configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	TLS         TLSConfig         `yaml:"tls"`
	Admin       AdminConfig       `yaml:"admin"`
	Storage     StorageConfig     `yaml:"storage"`
	KeyProvider KeyProviderConfig `yaml:"keyprovider"`
	Password    PasswordConfig    `yaml:"password"`
	Lockout     LockoutConfig     `yaml:"lockout"`
	SecurityLog SecurityLogConfig `yaml:"securitylog"`
	Pinning     PinningConfig     `yaml:"pinning"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Health      HealthConfig      `yaml:"health"`
}

// ServerConfig contains admin API listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AdminConfig protects the /api/v1 routes. When neither field is set the
// admin routes are not mounted.
type AdminConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// ResolveToken returns the inline token, or the trimmed contents of
// TokenFile.
func (a AdminConfig) ResolveToken() (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	if a.TokenFile == "" {
		return "", nil
	}
	// #nosec G304 - token path comes from operator configuration
	data, err := os.ReadFile(a.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read admin token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("admin token file %s is empty", a.TokenFile)
	}
	return token, nil
}

// StorageConfig selects the secret store's backing medium.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, memory
	Path    string `yaml:"path"`
	// Cipher pins the AEAD used for new writes: auto, aes256-gcm or
	// chacha20-poly1305. Existing entries open regardless.
	Cipher string `yaml:"cipher"`
}

// KeyProviderConfig selects where the secret store master key comes from.
type KeyProviderConfig struct {
	Type    string          `yaml:"type"`
	File    FileKeyConfig   `yaml:"file"`
	Keyring KeyringConfig   `yaml:"keyring"`
	Static  StaticKeyConfig `yaml:"static"`
	AWSKMS  AWSKMSConfig    `yaml:"awskms"`
	GCPKMS  GCPKMSConfig    `yaml:"gcpkms"`
	AzureKV AzureKVConfig   `yaml:"azurekv"`
	Vault   VaultConfig     `yaml:"vault"`
}

// FileKeyConfig configures the file key provider.
type FileKeyConfig struct {
	Path string `yaml:"path"`
}

// KeyringConfig configures the Linux kernel keyring provider.
type KeyringConfig struct {
	Description string `yaml:"description"`
}

// StaticKeyConfig holds a base64 master key. Intended for development.
type StaticKeyConfig struct {
	Key string `yaml:"key"`
}

// AWSKMSConfig contains AWS KMS settings.
type AWSKMSConfig struct {
	KeyID           string `yaml:"key_id"`
	WrappedKey      string `yaml:"wrapped_key"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// GCPKMSConfig contains Google Cloud KMS settings.
type GCPKMSConfig struct {
	KeyName         string `yaml:"key_name"`
	WrappedKey      string `yaml:"wrapped_key"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// AzureKVConfig contains Azure Key Vault settings.
type AzureKVConfig struct {
	VaultURL      string `yaml:"vault_url"`
	SecretName    string `yaml:"secret_name"`
	SecretVersion string `yaml:"secret_version"`
	TenantID      string `yaml:"tenant_id"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
}

// VaultConfig contains HashiCorp Vault settings.
type VaultConfig struct {
	Address       string `yaml:"address"`
	Token         string `yaml:"token"`
	Namespace     string `yaml:"namespace"`
	Path          string `yaml:"path"`
	Field         string `yaml:"field"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
}

// PasswordConfig contains password hashing settings.
type PasswordConfig struct {
	Cost int `yaml:"cost"`
}

// LockoutConfig contains account lockout settings.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// SecurityLogConfig contains security event log settings.
type SecurityLogConfig struct {
	Dir          string `yaml:"dir"`
	FileName     string `yaml:"file_name"`
	MaxSize      int64  `yaml:"max_size"`
	DefaultLines int    `yaml:"default_lines"`
}

// PinningConfig selects the pin set used by outbound API clients. Host and
// Pins, when both set, replace the environment's built-in set. CAFile
// replaces the system roots for chain verification, which still runs
// before the pin check.
type PinningConfig struct {
	Environment string   `yaml:"environment"` // production, development
	Host        string   `yaml:"host"`
	Pins        []string `yaml:"pins"`
	CAFile      string   `yaml:"ca_file"`
}

// PinSet resolves the configured pin set.
func (p PinningConfig) PinSet() (pinning.PinSet, error) {
	if p.Host != "" || len(p.Pins) > 0 {
		return pinning.NewPinSet(p.Host, p.Pins...)
	}
	return pinning.ForEnvironment(pinning.Environment(p.Environment))
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig contains health endpoint settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8443,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		TLS:     TLSConfig{MinVersion: "TLS1.2"},
		Storage: StorageConfig{Backend: StorageFile, Path: "data/store"},
		KeyProvider: KeyProviderConfig{
			Type:    KeyProviderFile,
			File:    FileKeyConfig{Path: "data/master.key"},
			Keyring: KeyringConfig{Description: "trustgate:master"},
			Vault:   VaultConfig{Field: "key"},
		},
		Password: PasswordConfig{Cost: 12},
		Lockout:  LockoutConfig{Threshold: 5, Window: 15 * time.Minute},
		SecurityLog: SecurityLogConfig{
			Dir:          "data",
			FileName:     "security_events.log",
			MaxSize:      1 << 20,
			DefaultLines: 100,
		},
		Pinning:   PinningConfig{Environment: string(pinning.Production)},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 10},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Health:    HealthConfig{Enabled: true},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	// #nosec G304 - configuration path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefault is Load without a file: the built-in defaults plus
// environment overrides.
func LoadDefault() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies TRUSTGATE_* variables and the standard cloud
// SDK variables. Invalid numeric values keep the configured value.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("TRUSTGATE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if v := os.Getenv("TRUSTGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: invalid TRUSTGATE_PORT value %q, using %d: %v", v, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid TRUSTGATE_PORT value %q (out of range 1-65535), using %d", v, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if level := os.Getenv("TRUSTGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("TRUSTGATE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if token := os.Getenv("TRUSTGATE_ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}

	// TRUSTGATE_DATA_DIR relocates every relative data path.
	if dir := os.Getenv("TRUSTGATE_DATA_DIR"); dir != "" {
		cfg.Storage.Path = rebase(dir, cfg.Storage.Path, "store")
		cfg.KeyProvider.File.Path = rebase(dir, cfg.KeyProvider.File.Path, "master.key")
		cfg.SecurityLog.Dir = dir
	}
	if backend := os.Getenv("TRUSTGATE_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dir := os.Getenv("TRUSTGATE_SECURITY_LOG_DIR"); dir != "" {
		cfg.SecurityLog.Dir = dir
	}

	if kp := os.Getenv("TRUSTGATE_KEY_PROVIDER"); kp != "" {
		cfg.KeyProvider.Type = kp
	}
	if key := os.Getenv("TRUSTGATE_STATIC_KEY"); key != "" {
		cfg.KeyProvider.Static.Key = key
	}

	if v := os.Getenv("TRUSTGATE_LOCKOUT_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			log.Printf("Warning: invalid TRUSTGATE_LOCKOUT_THRESHOLD value %q, using %d", v, cfg.Lockout.Threshold)
		} else {
			cfg.Lockout.Threshold = n
		}
	}
	if v := os.Getenv("TRUSTGATE_LOCKOUT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Printf("Warning: invalid TRUSTGATE_LOCKOUT_WINDOW value %q, using %s", v, cfg.Lockout.Window)
		} else {
			cfg.Lockout.Window = d
		}
	}

	if env := os.Getenv("TRUSTGATE_PINNING_ENV"); env != "" {
		cfg.Pinning.Environment = env
	}

	// AWS
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.KeyProvider.AWSKMS.Region = region
	}
	if keyID := os.Getenv("AWS_KMS_KEY_ID"); keyID != "" {
		cfg.KeyProvider.AWSKMS.KeyID = keyID
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.KeyProvider.AWSKMS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.KeyProvider.AWSKMS.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_SESSION_TOKEN"); v != "" {
		cfg.KeyProvider.AWSKMS.SessionToken = v
	}

	// GCP
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		cfg.KeyProvider.GCPKMS.CredentialsFile = creds
	}

	// Azure
	if url := os.Getenv("AZURE_KEYVAULT_URL"); url != "" {
		cfg.KeyProvider.AzureKV.VaultURL = url
	}
	if v := os.Getenv("AZURE_TENANT_ID"); v != "" {
		cfg.KeyProvider.AzureKV.TenantID = v
	}
	if v := os.Getenv("AZURE_CLIENT_ID"); v != "" {
		cfg.KeyProvider.AzureKV.ClientID = v
	}
	if v := os.Getenv("AZURE_CLIENT_SECRET"); v != "" {
		cfg.KeyProvider.AzureKV.ClientSecret = v
	}

	// Vault
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		cfg.KeyProvider.Vault.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		cfg.KeyProvider.Vault.Token = token
	}
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		cfg.KeyProvider.Vault.Namespace = ns
	}
}

// rebase moves a relative path under dir. Absolute paths are kept.
func rebase(dir, path, fallback string) string {
	if path == "" {
		return filepath.Join(dir, fallback)
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, filepath.Base(path))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}
	if c.TLS.MinVersion != "" {
		if _, err := parseTLSVersion(c.TLS.MinVersion); err != nil {
			return fmt.Errorf("TLS min_version: %w", err)
		}
	}

	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage backend: %q (must be file or memory)", c.Storage.Backend)
	}
	if _, err := aead.ParseAlgorithm(c.Storage.Cipher); err != nil {
		return fmt.Errorf("storage cipher: %w", err)
	}

	if err := c.KeyProvider.validate(); err != nil {
		return err
	}

	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return fmt.Errorf("password cost %d out of range %d-%d", c.Password.Cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.Window <= 0 {
		return fmt.Errorf("lockout window must be positive")
	}

	if c.SecurityLog.Dir == "" {
		return fmt.Errorf("securitylog dir is required")
	}
	if c.SecurityLog.MaxSize < 1024 {
		return fmt.Errorf("securitylog max_size must be at least 1024 bytes")
	}
	if c.SecurityLog.DefaultLines < 1 {
		return fmt.Errorf("securitylog default_lines must be at least 1")
	}

	if _, err := c.Pinning.PinSet(); err != nil {
		return fmt.Errorf("pinning: %w", err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin < 1 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("ratelimit requests_per_min and burst must be positive when enabled")
	}
	if _, err := ratelimit.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}

	return nil
}

func (k KeyProviderConfig) validate() error {
	switch k.Type {
	case KeyProviderFile:
		if k.File.Path == "" {
			return fmt.Errorf("keyprovider file.path is required")
		}
	case KeyProviderKeyring:
		if k.Keyring.Description == "" {
			return fmt.Errorf("keyprovider keyring.description is required")
		}
	case KeyProviderStatic:
		if k.Static.Key == "" {
			return fmt.Errorf("keyprovider static.key is required")
		}
	case KeyProviderAWSKMS:
		if k.AWSKMS.KeyID == "" || k.AWSKMS.WrappedKey == "" {
			return fmt.Errorf("keyprovider awskms requires key_id and wrapped_key")
		}
	case KeyProviderGCPKMS:
		if k.GCPKMS.KeyName == "" || k.GCPKMS.WrappedKey == "" {
			return fmt.Errorf("keyprovider gcpkms requires key_name and wrapped_key")
		}
	case KeyProviderAzureKV:
		if k.AzureKV.VaultURL == "" || k.AzureKV.SecretName == "" {
			return fmt.Errorf("keyprovider azurekv requires vault_url and secret_name")
		}
	case KeyProviderVault:
		if k.Vault.Address == "" || k.Vault.Path == "" {
			return fmt.Errorf("keyprovider vault requires address and path")
		}
	case KeyProviderNone:
	default:
		return fmt.Errorf("invalid keyprovider type: %q", k.Type)
	}
	return nil
}
