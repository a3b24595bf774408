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

package keyprovider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	vault "github.com/hashicorp/vault/api"
)

// VaultLogical is the subset of the Vault logical API the provider uses.
type VaultLogical interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultConfig configures the Vault provider.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string

	// Path is the logical read path, e.g. "secret/data/trustgate".
	Path string

	// Field holds the base64 key within the secret. Defaults to "key".
	Field string

	TLSSkipVerify bool
}

// Vault reads the master key from a Vault KV secret. Both KV v1 and the v2
// "data" wrapper are understood.
type Vault struct {
	mu      sync.Mutex
	config  VaultConfig
	logical VaultLogical
}

// NewVault validates cfg. The client is created lazily on first use.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: vault requires a secret path", ErrInvalidConfig)
	}
	if cfg.Field == "" {
		cfg.Field = "key"
	}
	return &Vault{config: cfg}, nil
}

// NewVaultWithLogical returns a provider reading through logical.
func NewVaultWithLogical(cfg VaultConfig, logical VaultLogical) (*Vault, error) {
	p, err := NewVault(cfg)
	if err != nil {
		return nil, err
	}
	p.logical = logical
	return p, nil
}

// Name returns "vault".
func (p *Vault) Name() string { return "vault" }

func (p *Vault) initClient() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logical != nil {
		return nil
	}

	vaultConfig := vault.DefaultConfig()
	if p.config.Address != "" {
		vaultConfig.Address = p.config.Address
	}
	if p.config.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}
	if p.config.Token != "" {
		client.SetToken(p.config.Token)
	}
	if p.config.Namespace != "" {
		client.SetNamespace(p.config.Namespace)
	}
	p.logical = client.Logical()
	return nil
}

// MasterKey reads and decodes the configured field.
func (p *Vault) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	if err := p.initClient(); err != nil {
		return nil, unavailable(p.Name(), err)
	}

	secret, err := p.logical.ReadWithContext(ctx, p.config.Path)
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	if secret == nil || secret.Data == nil {
		return nil, unavailable(p.Name(), errors.New("secret not found"))
	}

	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}
	encoded, ok := data[p.config.Field].(string)
	if !ok {
		return nil, unavailable(p.Name(), fmt.Errorf("field %q missing", p.config.Field))
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not base64: %v", ErrInvalidKey, p.config.Field, err)
	}
	return sealKey(key)
}
