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

// Package aead selects and applies the authenticated cipher used to seal
// secret store entries.
//
// Each sealed blob records its algorithm, so a store written on an AES
// capable host still opens on one that preferred ChaCha20-Poly1305.
package aead

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Algorithm identifies an AEAD construction. Non-zero values are persisted
// as the first byte of every sealed blob.
type Algorithm byte

const (
	// Auto defers the choice to Preferred. It is never persisted.
	Auto Algorithm = 0

	AES256GCM        Algorithm = 1
	ChaCha20Poly1305 Algorithm = 2
)

var names = map[Algorithm]string{
	Auto:             "auto",
	AES256GCM:        "aes256-gcm",
	ChaCha20Poly1305: "chacha20-poly1305",
}

func (a Algorithm) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return "unknown"
}

// ParseAlgorithm accepts the names String produces. An empty name is Auto.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Auto, nil
	}
	for alg, n := range names {
		if n == name {
			return alg, nil
		}
	}
	return Auto, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// HasAESNI reports hardware AES on amd64 and arm64. Other architectures
// always report false.
func HasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	}
	return false
}

// Preferred is AES-256-GCM on hosts with AES instructions and
// ChaCha20-Poly1305 elsewhere, where a software AES would be slow and
// exposed to cache timing.
func Preferred() Algorithm {
	if HasAESNI() {
		return AES256GCM
	}
	return ChaCha20Poly1305
}
