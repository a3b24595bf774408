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

// Package memory provides a volatile storage.Backend. It backs the secret
// store in tests and in deployments configured with storage.backend=memory,
// where nothing may touch the disk.
package memory

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-trustgate/pkg/storage"
)

var _ storage.Backend = (*Storage)(nil)

// Storage is a map of blobs. Values are cloned on Put and on Get.
// A nil map marks the backend closed.
type Storage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Storage {
	return &Storage{data: map[string][]byte{}}
}

// view runs fn under the read lock unless the backend is closed.
func (s *Storage) view(fn func(data map[string][]byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return storage.ErrClosed
	}
	return fn(s.data)
}

// update runs fn under the write lock unless the backend is closed.
func (s *Storage) update(fn func(data map[string][]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return storage.ErrClosed
	}
	return fn(s.data)
}

func (s *Storage) Get(key string) ([]byte, error) {
	var out []byte
	err := s.view(func(data map[string][]byte) error {
		v, ok := data[key]
		if !ok {
			return storage.ErrNotFound
		}
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

// Put ignores opts; there is nothing to apply permissions to.
func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	stored := bytes.Clone(value)
	if stored == nil {
		stored = []byte{}
	}
	return s.update(func(data map[string][]byte) error {
		data[key] = stored
		return nil
	})
}

func (s *Storage) Delete(key string) error {
	return s.update(func(data map[string][]byte) error {
		if _, ok := data[key]; !ok {
			return storage.ErrNotFound
		}
		delete(data, key)
		return nil
	})
}

func (s *Storage) List(prefix string) ([]string, error) {
	var keys []string
	err := s.view(func(data map[string][]byte) error {
		keys = slices.Sorted(maps.Keys(data))
		keys = slices.DeleteFunc(keys, func(k string) bool {
			return !strings.HasPrefix(k, prefix)
		})
		return nil
	})
	return keys, err
}

func (s *Storage) Exists(key string) (bool, error) {
	var ok bool
	err := s.view(func(data map[string][]byte) error {
		_, ok = data[key]
		return nil
	})
	return ok, err
}

// Close drops everything. Later calls return storage.ErrClosed; a second
// Close is a no-op.
func (s *Storage) Close() error {
	s.mu.Lock()
	clear(s.data)
	s.data = nil
	s.mu.Unlock()
	return nil
}
