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

package password

import (
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$"

// Bounds that keep a hostile hash string from turning verification
// into a trivially cheap or absurdly expensive computation.
const (
	minArgonMemoryKB = 8 * 1024
	maxArgonMemoryKB = 1024 * 1024
	maxArgonTime     = 64
	maxArgonThreads  = 64
	minArgonSaltLen  = 16
	minArgonHashLen  = 16
	maxArgonHashLen  = 64
)

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// verifyArgon2id checks password against a PHC string of the form
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>.
func verifyArgon2id(password, encoded string) bool {
	p, ok := parseArgon2id(encoded)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1
}

func parseArgon2id(encoded string) (*argon2Params, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, false
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, false
	}

	var p argon2Params
	params := map[string]string{}
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return nil, false
		}
		if _, dup := params[k]; dup {
			return nil, false
		}
		params[k] = v
	}
	if len(params) != 3 {
		return nil, false
	}

	m, err := strconv.ParseUint(params["m"], 10, 32)
	if err != nil || m < minArgonMemoryKB || m > maxArgonMemoryKB {
		return nil, false
	}
	t, err := strconv.ParseUint(params["t"], 10, 32)
	if err != nil || t < 1 || t > maxArgonTime {
		return nil, false
	}
	threads, err := strconv.ParseUint(params["p"], 10, 8)
	if err != nil || threads < 1 || threads > maxArgonThreads {
		return nil, false
	}
	p.memory, p.time, p.parallelism = uint32(m), uint32(t), uint8(threads)

	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < minArgonSaltLen {
		return nil, false
	}
	if p.hash, err = decodeB64(parts[5]); err != nil || len(p.hash) < minArgonHashLen || len(p.hash) > maxArgonHashLen {
		return nil, false
	}
	return &p, true
}

// decodeB64 accepts both the unpadded PHC alphabet and padded standard base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
