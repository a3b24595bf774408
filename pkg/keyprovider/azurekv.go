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

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/awnumar/memguard"
)

// AzureSecretsClient is the subset of the Key Vault secrets API the provider uses.
type AzureSecretsClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVaultConfig configures the Azure Key Vault provider.
type AzureKeyVaultConfig struct {
	VaultURL   string
	SecretName string

	// SecretVersion pins a version; empty reads the latest.
	SecretVersion string

	// Service principal credentials. When empty DefaultAzureCredential is used.
	TenantID     string
	ClientID     string
	ClientSecret string
}

// AzureKeyVault reads a base64 master key stored as a Key Vault secret.
type AzureKeyVault struct {
	mu     sync.Mutex
	config AzureKeyVaultConfig
	client AzureSecretsClient
}

// NewAzureKeyVault validates cfg. The client is created lazily on first use.
func NewAzureKeyVault(cfg AzureKeyVaultConfig) (*AzureKeyVault, error) {
	if cfg.VaultURL == "" || cfg.SecretName == "" {
		return nil, fmt.Errorf("%w: azurekv requires vault_url and secret_name", ErrInvalidConfig)
	}
	return &AzureKeyVault{config: cfg}, nil
}

// NewAzureKeyVaultWithClient returns a provider using client.
func NewAzureKeyVaultWithClient(cfg AzureKeyVaultConfig, client AzureSecretsClient) (*AzureKeyVault, error) {
	p, err := NewAzureKeyVault(cfg)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Name returns "azurekv".
func (p *AzureKeyVault) Name() string { return "azurekv" }

func (p *AzureKeyVault) initClient() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	var cred azcore.TokenCredential
	if p.config.TenantID != "" && p.config.ClientID != "" && p.config.ClientSecret != "" {
		c, err := azidentity.NewClientSecretCredential(
			p.config.TenantID,
			p.config.ClientID,
			p.config.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{},
		)
		if err != nil {
			return fmt.Errorf("failed to create client secret credential: %w", err)
		}
		cred = c
	} else {
		c, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{})
		if err != nil {
			return fmt.Errorf("failed to create default credential: %w", err)
		}
		cred = c
	}

	client, err := azsecrets.NewClient(p.config.VaultURL, cred, nil)
	if err != nil {
		return fmt.Errorf("failed to create secrets client: %w", err)
	}
	p.client = client
	return nil
}

// MasterKey fetches and decodes the secret.
func (p *AzureKeyVault) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	if err := p.initClient(); err != nil {
		return nil, unavailable(p.Name(), err)
	}

	resp, err := p.client.GetSecret(ctx, p.config.SecretName, p.config.SecretVersion, nil)
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	if resp.Value == nil {
		return nil, unavailable(p.Name(), errors.New("secret has no value"))
	}

	key, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not base64: %v", ErrInvalidKey, err)
	}
	return sealKey(key)
}
