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

// Package storage defines the raw byte-level medium underneath the secret
// store. Backends know nothing about encryption or value types; they persist
// opaque blobs under string keys.
package storage

import "io/fs"

// DefaultPermissions is the mode file-backed entries are written with.
const DefaultPermissions fs.FileMode = 0o600

// Backend is implemented by every blob medium. Implementations are safe for
// concurrent use and Put is atomic per key: a reader sees the old blob or
// the new one, never a torn write.
type Backend interface {
	// Get returns ErrNotFound for a missing key.
	Get(key string) ([]byte, error)

	// Put overwrites key. The blob is durable once Put returns.
	Put(key string, value []byte, opts *Options) error

	// Delete returns ErrNotFound for a missing key.
	Delete(key string) error

	// List returns the keys under prefix, sorted. An empty prefix lists all.
	List(prefix string) ([]string, error)

	Exists(key string) (bool, error)

	Close() error
}

// Options tune a single Put. A nil *Options means defaults.
type Options struct {
	// Permissions applies to file-backed entries only.
	Permissions fs.FileMode
}

// DefaultOptions returns owner-only options.
func DefaultOptions() *Options {
	return &Options{Permissions: DefaultPermissions}
}

// FileMode resolves the permissions for a Put, falling back to
// DefaultPermissions when opts is nil or leaves them unset.
func (o *Options) FileMode() fs.FileMode {
	if o == nil || o.Permissions == 0 {
		return DefaultPermissions
	}
	return o.Permissions
}
