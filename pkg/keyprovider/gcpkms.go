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
	"fmt"
	"sync"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/awnumar/memguard"
	"google.golang.org/api/option"
)

// GCPKMSClient is the subset of Cloud KMS used to unwrap the data key.
type GCPKMSClient interface {
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
}

// GCPKMSConfig configures the Cloud KMS provider.
type GCPKMSConfig struct {
	// KeyName is the full CryptoKey resource name:
	// projects/*/locations/*/keyRings/*/cryptoKeys/*
	KeyName string

	// WrappedKey is the base64 ciphertext of the master key.
	WrappedKey string

	CredentialsFile string
	Endpoint        string
}

type realGCPKMSClient struct {
	*kms.KeyManagementClient
}

func (r *realGCPKMSClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return r.KeyManagementClient.Decrypt(ctx, req)
}

// GCPKMS unwraps a Cloud KMS encrypted master key.
type GCPKMS struct {
	mu     sync.Mutex
	config GCPKMSConfig
	blob   []byte
	client GCPKMSClient
}

// NewGCPKMS validates cfg. The client is created lazily on first use.
func NewGCPKMS(cfg GCPKMSConfig) (*GCPKMS, error) {
	if cfg.KeyName == "" || cfg.WrappedKey == "" {
		return nil, fmt.Errorf("%w: gcpkms requires key_name and wrapped_key", ErrInvalidConfig)
	}
	blob, err := base64.StdEncoding.DecodeString(cfg.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: gcpkms wrapped_key: %v", ErrInvalidConfig, err)
	}
	return &GCPKMS{config: cfg, blob: blob}, nil
}

// NewGCPKMSWithClient returns a provider using client.
func NewGCPKMSWithClient(cfg GCPKMSConfig, client GCPKMSClient) (*GCPKMS, error) {
	p, err := NewGCPKMS(cfg)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Name returns "gcpkms".
func (p *GCPKMS) Name() string { return "gcpkms" }

func (p *GCPKMS) initClient(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	var opts []option.ClientOption
	if p.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.config.CredentialsFile))
	}
	if p.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.config.Endpoint))
	}

	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create KMS client: %w", err)
	}
	p.client = &realGCPKMSClient{KeyManagementClient: client}
	return nil
}

// MasterKey decrypts the wrapped master key.
func (p *GCPKMS) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	if err := p.initClient(ctx); err != nil {
		return nil, unavailable(p.Name(), err)
	}

	resp, err := p.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       p.config.KeyName,
		Ciphertext: p.blob,
	})
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	return sealKey(resp.GetPlaintext())
}
