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

//go:build !linux

package keyprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// Keyring is only functional on Linux.
type Keyring struct {
	description string
}

// NewKeyring returns a provider that always reports the keyring unavailable.
func NewKeyring(description string) (*Keyring, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: keyring provider requires a key description", ErrInvalidConfig)
	}
	return &Keyring{description: description}, nil
}

// Name returns "keyring".
func (k *Keyring) Name() string { return "keyring" }

// MasterKey always fails on this platform.
func (k *Keyring) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	return nil, unavailable(k.Name(), errors.New("kernel keyring not supported on this platform"))
}
