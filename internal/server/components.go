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

package server

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-trustgate/internal/config"
	"github.com/jeremyhahn/go-trustgate/pkg/auth"
	"github.com/jeremyhahn/go-trustgate/pkg/crypto/aead"
	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/password"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/ratelimit"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/storage"
	"github.com/jeremyhahn/go-trustgate/pkg/storage/file"
	"github.com/jeremyhahn/go-trustgate/pkg/storage/memory"
)

// Components is the trust core assembled from one configuration. trustd
// serves it over the admin API and trustctl drives it directly.
type Components struct {
	Store   *secretstore.Store
	Lockout *lockout.Engine
	Events  *securitylog.Log
	Hasher  *password.Hasher
	Limiter *ratelimit.Limiter
	Guard   *auth.Guard
	Pins    pinning.PinSet
}

// NewComponents builds every component from cfg. The secret store is
// returned unopened; callers decide when to contact the key provider.
func NewComponents(cfg *config.Config, fsys afero.Fs, logger *logging.Logger) (*Components, error) {
	logger = logging.OrDefault(logger)

	backend, err := NewStorageBackend(cfg.Storage, fsys)
	if err != nil {
		return nil, err
	}
	provider, err := NewKeyProvider(cfg.KeyProvider, fsys)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	alg, err := aead.ParseAlgorithm(cfg.Storage.Cipher)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	store := secretstore.New(backend, provider,
		secretstore.WithAlgorithm(alg),
		secretstore.WithLogger(logger.With("component", "secretstore")))

	engine := lockout.New(store,
		lockout.WithThreshold(cfg.Lockout.Threshold),
		lockout.WithWindow(cfg.Lockout.Window),
		lockout.WithLogger(logger.With("component", "lockout")))

	events := securitylog.New(fsys, cfg.SecurityLog.Dir, engine,
		securitylog.WithFileName(cfg.SecurityLog.FileName),
		securitylog.WithMaxSize(cfg.SecurityLog.MaxSize),
		securitylog.WithDefaultLines(cfg.SecurityLog.DefaultLines),
		securitylog.WithLogger(logger.With("component", "securitylog")))

	hasher, err := password.New(cfg.Password.Cost)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	pins, err := cfg.Pinning.PinSet()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("pinning: %w", err)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
		TrustedProxies:    cfg.RateLimit.TrustedProxies,
	})

	guard := auth.New(auth.NewSecretStoreCredentials(store), engine, events,
		auth.WithHasher(hasher),
		auth.WithRateLimiter(limiter),
		auth.WithLogger(logger.With("component", "auth")))

	return &Components{
		Store:   store,
		Lockout: engine,
		Events:  events,
		Hasher:  hasher,
		Limiter: limiter,
		Guard:   guard,
		Pins:    pins,
	}, nil
}

// Close stops the limiter and closes the secret store.
func (c *Components) Close() error {
	c.Limiter.Stop()
	return c.Store.Close()
}

// NewStorageBackend creates the configured storage medium.
func NewStorageBackend(cfg config.StorageConfig, fsys afero.Fs) (storage.Backend, error) {
	switch cfg.Backend {
	case config.StorageFile:
		backend, err := file.NewWithFs(fsys, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage: %w", err)
		}
		return backend, nil
	case config.StorageMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}

// NewKeyProvider creates the configured master key provider. Cloud SDK
// clients are created lazily, so construction never touches the network.
func NewKeyProvider(cfg config.KeyProviderConfig, fsys afero.Fs) (keyprovider.Provider, error) {
	switch cfg.Type {
	case config.KeyProviderFile:
		return keyprovider.NewFileWithFs(fsys, cfg.File.Path)

	case config.KeyProviderKeyring:
		return keyprovider.NewKeyring(cfg.Keyring.Description)

	case config.KeyProviderStatic:
		key, err := base64.StdEncoding.DecodeString(cfg.Static.Key)
		if err != nil {
			return nil, fmt.Errorf("static key is not valid base64: %w", err)
		}
		return keyprovider.NewStatic(key)

	case config.KeyProviderAWSKMS:
		return keyprovider.NewAWSKMS(keyprovider.AWSKMSConfig{
			KeyID:           cfg.AWSKMS.KeyID,
			WrappedKey:      cfg.AWSKMS.WrappedKey,
			Region:          cfg.AWSKMS.Region,
			Endpoint:        cfg.AWSKMS.Endpoint,
			AccessKeyID:     cfg.AWSKMS.AccessKeyID,
			SecretAccessKey: cfg.AWSKMS.SecretAccessKey,
			SessionToken:    cfg.AWSKMS.SessionToken,
		})

	case config.KeyProviderGCPKMS:
		return keyprovider.NewGCPKMS(keyprovider.GCPKMSConfig{
			KeyName:         cfg.GCPKMS.KeyName,
			WrappedKey:      cfg.GCPKMS.WrappedKey,
			CredentialsFile: cfg.GCPKMS.CredentialsFile,
			Endpoint:        cfg.GCPKMS.Endpoint,
		})

	case config.KeyProviderAzureKV:
		return keyprovider.NewAzureKeyVault(keyprovider.AzureKeyVaultConfig{
			VaultURL:      cfg.AzureKV.VaultURL,
			SecretName:    cfg.AzureKV.SecretName,
			SecretVersion: cfg.AzureKV.SecretVersion,
			TenantID:      cfg.AzureKV.TenantID,
			ClientID:      cfg.AzureKV.ClientID,
			ClientSecret:  cfg.AzureKV.ClientSecret,
		})

	case config.KeyProviderVault:
		return keyprovider.NewVault(keyprovider.VaultConfig{
			Address:       cfg.Vault.Address,
			Token:         cfg.Vault.Token,
			Namespace:     cfg.Vault.Namespace,
			Path:          cfg.Vault.Path,
			Field:         cfg.Vault.Field,
			TLSSkipVerify: cfg.Vault.TLSSkipVerify,
		})

	case config.KeyProviderNone:
		return keyprovider.Unavailable{Reason: "key provider disabled by configuration"}, nil

	default:
		return nil, fmt.Errorf("unsupported key provider: %q", cfg.Type)
	}
}
