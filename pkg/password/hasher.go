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

// Package password hashes and verifies user passwords.
//
// New hashes are bcrypt at a fixed cost. Verification also accepts PHC
// encoded argon2id hashes so credentials migrated from other systems keep
// working; NeedsRehash tells the caller when to replace them.
//
// Hash and Verify are deliberately slow. Do not call them on a latency
// sensitive path.
package password

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
)

// DefaultCost puts a single hash in the 100 to 300ms range on current server hardware.
const DefaultCost = 12

const component = "password"

var (
	// ErrInvalidCost is returned by New for a cost outside bcrypt's range.
	ErrInvalidCost = errors.New("password: invalid bcrypt cost")

	// ErrTooLong is returned for passwords bcrypt would silently truncate.
	ErrTooLong = errors.New("password: longer than 72 bytes")
)

// bcryptPrefixes lists the bcrypt revisions Verify accepts.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Hasher hashes passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// New returns a Hasher using cost.
func New(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidCost, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Default returns a Hasher at DefaultCost.
func Default() *Hasher {
	return &Hasher{cost: DefaultCost}
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrTooLong
	}

	start := time.Now()
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		metrics.RecordOperation(metrics.OpHash, component, metrics.StatusError, time.Since(start).Seconds())
		return "", fmt.Errorf("password: hashing: %w", err)
	}
	metrics.RecordOperation(metrics.OpHash, component, metrics.StatusSuccess, time.Since(start).Seconds())
	return string(out), nil
}

// Verify reports whether password matches hash. Malformed or unsupported
// hashes yield false; Verify never fails.
func (h *Hasher) Verify(password, hash string) bool {
	start := time.Now()
	ok := verify(password, hash)
	status := metrics.StatusSuccess
	if !ok {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.OpVerify, component, status, time.Since(start).Seconds())
	return ok
}

func verify(password, hash string) bool {
	switch {
	case isBcrypt(hash):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	case strings.HasPrefix(hash, argon2idPrefix):
		return verifyArgon2id(password, hash)
	default:
		return false
	}
}

// IsValidHash reports whether hash carries a recognized algorithm prefix.
func IsValidHash(hash string) bool {
	return isBcrypt(hash) || strings.HasPrefix(hash, argon2idPrefix)
}

func isBcrypt(hash string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(hash, p) {
			return true
		}
	}
	return false
}

// NeedsRehash reports whether hash should be replaced after a successful
// Verify: it is argon2id, unrecognized, or bcrypt at a lower cost.
func (h *Hasher) NeedsRehash(hash string) bool {
	if !isBcrypt(hash) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}
