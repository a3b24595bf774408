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

package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key length accepted by every supported algorithm.
const KeySize = 32

// New returns the cipher.AEAD for alg keyed with key.
func New(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	switch alg {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aead: %w", err)
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, alg)
	}
}

// Seal encrypts plaintext and returns algorithm(1) | nonce | ciphertext+tag.
// aad is authenticated but not stored.
func Seal(alg Algorithm, key, plaintext, aad []byte) ([]byte, error) {
	c, err := New(alg, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+c.NonceSize(), 1+c.NonceSize()+len(plaintext)+c.Overhead())
	out[0] = byte(alg)
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("aead: generating nonce: %w", err)
	}
	return c.Seal(out, out[1:], plaintext, aad), nil
}

// Open reverses Seal. The algorithm is read from the blob.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrCiphertextTooShort
	}
	c, err := New(Algorithm(sealed[0]), key)
	if err != nil {
		return nil, err
	}

	body := sealed[1:]
	if len(body) < c.NonceSize()+c.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := body[:c.NonceSize()], body[c.NonceSize():]

	plaintext, err := c.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
