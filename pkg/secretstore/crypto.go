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

package secretstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-trustgate/pkg/crypto/aead"
)

// formatVersion prefixes every encrypted entry.
const formatVersion byte = 1

const (
	valueKeyInfo = "trustgate/secretstore/value/v1"
	nameKeyInfo  = "trustgate/secretstore/name/v1"
)

// keys holds the subkeys derived from the master key for one store ID.
type keys struct {
	value *memguard.LockedBuffer
	name  *memguard.LockedBuffer
}

// deriveKeys expands the master key into independent value and name keys,
// salted with the store ID so two stores sharing a master key never share
// subkeys.
func deriveKeys(master *memguard.Enclave, storeID string) (*keys, error) {
	buf, err := master.Open()
	if err != nil {
		return nil, fmt.Errorf("opening master key: %w", err)
	}
	defer buf.Destroy()

	value, err := expand(buf.Bytes(), storeID, valueKeyInfo)
	if err != nil {
		return nil, err
	}
	name, err := expand(buf.Bytes(), storeID, nameKeyInfo)
	if err != nil {
		value.Destroy()
		return nil, err
	}
	return &keys{value: value, name: name}, nil
}

func expand(master []byte, salt, info string) (*memguard.LockedBuffer, error) {
	out := make([]byte, aead.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, []byte(salt), []byte(info)), out); err != nil {
		memguard.WipeBytes(out)
		return nil, fmt.Errorf("deriving subkey: %w", err)
	}
	lb := memguard.NewBufferFromBytes(out)
	lb.Freeze()
	return lb, nil
}

func (k *keys) destroy() {
	k.value.Destroy()
	k.name.Destroy()
}

// entryName hides the logical key behind an HMAC so names are not readable at rest.
func (k *keys) entryName(key string) string {
	mac := hmac.New(sha256.New, k.name.Bytes())
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// seal produces version(1) | algorithm(1) | nonce | ciphertext. The logical
// key is bound as associated data so entries cannot be swapped on disk.
func (k *keys) seal(alg aead.Algorithm, key string, plaintext []byte) ([]byte, error) {
	sealed, err := aead.Seal(alg, k.value.Bytes(), plaintext, []byte(key))
	if err != nil {
		return nil, err
	}
	return append([]byte{formatVersion}, sealed...), nil
}

func (k *keys) open(key string, blob []byte) ([]byte, error) {
	if len(blob) < 1 || blob[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown format version", ErrCorrupt)
	}
	plaintext, err := aead.Open(k.value.Bytes(), blob[1:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}
