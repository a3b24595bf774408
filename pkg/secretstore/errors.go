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

import "errors"

var (
	// ErrNotOpen is returned by every operation before Open succeeds.
	ErrNotOpen = errors.New("secretstore: not open")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("secretstore: closed")

	// ErrInvalidKey is returned for keys rejected by validation.ValidateStoreKey.
	ErrInvalidKey = errors.New("secretstore: invalid key")

	// ErrTypeMismatch is returned when a typed getter finds a value of another type.
	ErrTypeMismatch = errors.New("secretstore: value type mismatch")

	// ErrCorrupt is returned when a stored entry cannot be decrypted or decoded.
	ErrCorrupt = errors.New("secretstore: corrupt entry")
)
