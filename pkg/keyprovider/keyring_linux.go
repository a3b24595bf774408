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

//go:build linux

package keyprovider

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// Keyring stores the master key in the Linux user keyring. A key created
// here lives until logout or reboot; hosts that need it across reboots pair
// the keyring with an external escrow.
type Keyring struct {
	description string
}

// NewKeyring returns a provider using the user keyring entry named description.
func NewKeyring(description string) (*Keyring, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: keyring provider requires a key description", ErrInvalidConfig)
	}
	return &Keyring{description: description}, nil
}

// Name returns "keyring".
func (k *Keyring) Name() string { return "keyring" }

// MasterKey reads the keyring entry, adding a random key when none exists.
func (k *Keyring) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	if _, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_USER_KEYRING, true); err != nil {
		return nil, unavailable(k.Name(), err)
	}

	id, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", k.description, 0)
	if err != nil {
		return k.create()
	}

	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, nil, 0)
	if err != nil {
		return nil, unavailable(k.Name(), err)
	}
	buf := make([]byte, size)
	if _, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, buf, 0); err != nil {
		return nil, unavailable(k.Name(), err)
	}
	return sealKey(buf)
}

func (k *Keyring) create() (*memguard.Enclave, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, unavailable(k.Name(), err)
	}

	id, err := unix.AddKey("user", k.description, key, unix.KEY_SPEC_USER_KEYRING)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, unavailable(k.Name(), err)
	}

	// Possessor and user: view, read, write, search, link, setattr.
	if err := unix.KeyctlSetperm(id, 0x3f3f0000); err != nil {
		_, _ = unix.KeyctlInt(unix.KEYCTL_UNLINK, id, unix.KEY_SPEC_USER_KEYRING, 0, 0)
		memguard.WipeBytes(key)
		return nil, unavailable(k.Name(), err)
	}
	return sealKey(key)
}
