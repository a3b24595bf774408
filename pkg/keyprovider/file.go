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

package keyprovider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/spf13/afero"
)

// File keeps the master key in an owner-only file, typically on a path the
// data directory does not share. The key is generated on first use.
type File struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFile returns a provider reading the key from path on the OS filesystem.
func NewFile(path string) (*File, error) {
	return NewFileWithFs(afero.NewOsFs(), path)
}

// NewFileWithFs returns a provider backed by fsys.
func NewFileWithFs(fsys afero.Fs, path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file provider requires a key path", ErrInvalidConfig)
	}
	return &File{fs: fsys, path: path}, nil
}

// Name returns "file".
func (f *File) Name() string { return "file" }

// MasterKey reads the key file, creating it with a random key when absent.
func (f *File) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if err == nil {
		return sealKey(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, unavailable(f.Name(), err)
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return nil, unavailable(f.Name(), err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, unavailable(f.Name(), err)
	}

	// O_EXCL so two processes racing on first start cannot both win.
	file, err := f.fs.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, unavailable(f.Name(), err)
	}
	if _, err := file.Write(key); err != nil {
		_ = file.Close()
		memguard.WipeBytes(key)
		return nil, unavailable(f.Name(), err)
	}
	if err := file.Close(); err != nil {
		memguard.WipeBytes(key)
		return nil, unavailable(f.Name(), err)
	}
	return sealKey(key)
}
