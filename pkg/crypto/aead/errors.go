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

import "errors"

var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("aead: key must be 32 bytes")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm identifier.
	ErrUnsupportedAlgorithm = errors.New("aead: unsupported algorithm")

	// ErrCiphertextTooShort is returned when a sealed blob cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrAuthentication is returned when the tag does not verify: wrong key,
	// wrong associated data, or tampered ciphertext.
	ErrAuthentication = errors.New("aead: message authentication failed")
)
