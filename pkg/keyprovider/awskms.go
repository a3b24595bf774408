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

	"github.com/awnumar/memguard"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// AWSKMSClient is the subset of the KMS API used to unwrap the data key.
type AWSKMSClient interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSConfig configures the AWS KMS provider.
type AWSKMSConfig struct {
	// KeyID is the ARN, ID or alias of the wrapping key.
	KeyID string

	// WrappedKey is the base64 ciphertext blob returned by GenerateDataKey.
	WrappedKey string

	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// AWSKMS unwraps a KMS encrypted data key and uses it as the master key.
type AWSKMS struct {
	mu     sync.Mutex
	config AWSKMSConfig
	blob   []byte
	client AWSKMSClient
}

// NewAWSKMS validates cfg. The SDK client is created lazily on first use.
func NewAWSKMS(cfg AWSKMSConfig) (*AWSKMS, error) {
	if cfg.KeyID == "" || cfg.WrappedKey == "" {
		return nil, fmt.Errorf("%w: awskms requires key_id and wrapped_key", ErrInvalidConfig)
	}
	blob, err := base64.StdEncoding.DecodeString(cfg.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: awskms wrapped_key: %v", ErrInvalidConfig, err)
	}
	return &AWSKMS{config: cfg, blob: blob}, nil
}

// NewAWSKMSWithClient returns a provider using client instead of the SDK default.
func NewAWSKMSWithClient(cfg AWSKMSConfig, client AWSKMSClient) (*AWSKMS, error) {
	p, err := NewAWSKMS(cfg)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Name returns "awskms".
func (p *AWSKMS) Name() string { return "awskms" }

func (p *AWSKMS) initClient(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if p.config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(p.config.Region))
	}
	if p.config.AccessKeyID != "" && p.config.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			p.config.AccessKeyID,
			p.config.SecretAccessKey,
			p.config.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*kms.Options)
	if p.config.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(p.config.Endpoint)
		})
	}
	p.client = kms.NewFromConfig(cfg, clientOpts...)
	return nil
}

// MasterKey decrypts the wrapped data key.
func (p *AWSKMS) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	if err := p.initClient(ctx); err != nil {
		return nil, unavailable(p.Name(), err)
	}

	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: p.blob,
		KeyId:          aws.String(p.config.KeyID),
	})
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	return sealKey(out.Plaintext)
}
