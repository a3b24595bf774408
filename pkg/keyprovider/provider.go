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

// Package keyprovider releases the secret store master key from a host
// managed key facility. Providers never persist the key next to the data it
// protects; the key is handed back inside a memguard enclave and only opened
// for the duration of a derivation.
package keyprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// KeySize is the master key length in bytes.
const KeySize = 32

var (
	// ErrUnavailable is wrapped by every provider failure. The secret store
	// treats it as a signal to degrade rather than abort.
	ErrUnavailable = errors.New("keyprovider: key facility unavailable")

	// ErrInvalidKey is returned when a facility yields key material of the wrong size.
	ErrInvalidKey = errors.New("keyprovider: invalid key material")

	// ErrInvalidConfig is returned by constructors given incomplete settings.
	ErrInvalidConfig = errors.New("keyprovider: invalid configuration")
)

// Provider obtains the master key from a host key facility.
type Provider interface {
	// Name identifies the facility in logs and health output.
	Name() string

	// MasterKey returns the master key sealed in an enclave.
	MasterKey(ctx context.Context) (*memguard.Enclave, error)
}

// sealKey moves key into an enclave, wiping the caller's copy.
func sealKey(key []byte) (*memguard.Enclave, error) {
	if len(key) != KeySize {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	return memguard.NewEnclave(key), nil
}

func unavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
}

// Static serves a fixed key. It exists for tests and for embedding hosts that
// manage the key themselves.
type Static struct {
	enclave *memguard.Enclave
}

// NewStatic copies key into an enclave. The argument is not modified.
func NewStatic(key []byte) (*Static, error) {
	buf := make([]byte, len(key))
	copy(buf, key)
	enclave, err := sealKey(buf)
	if err != nil {
		return nil, err
	}
	return &Static{enclave: enclave}, nil
}

// Name returns "static".
func (s *Static) Name() string { return "static" }

// MasterKey returns the configured key.
func (s *Static) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	return s.enclave, nil
}

// Unavailable is a provider whose facility is always broken. It forces the
// secret store onto its plaintext fallback.
type Unavailable struct {
	Reason string
}

// Name returns "none".
func (u Unavailable) Name() string { return "none" }

// MasterKey always fails with ErrUnavailable.
func (u Unavailable) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no key provider configured"
	}
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, reason)
}
