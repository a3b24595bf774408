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

package memory

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/jeremyhahn/go-trustgate/pkg/storage"
)

func TestPutGet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value []byte
	}{
		{"simple key-value", "meta/store-id", []byte("c0ffee")},
		{"empty value", "empty", []byte{}},
		{"binary data", "binary", []byte{0x00, 0x01, 0x02, 0xFF}},
		{"namespaced key", storage.NewKey("lockout/failed_attempts", "alice").String(), []byte{1}},
	}

	store := New()
	defer store.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Put(tt.key, tt.value, nil); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, err := store.Get(tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(got, tt.value) {
				t.Errorf("Get() = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestPutRejectsEmptyKey(t *testing.T) {
	store := New()
	if err := store.Put("", []byte("x"), nil); err != storage.ErrInvalidKey {
		t.Errorf("Put(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestDefensiveCopies(t *testing.T) {
	store := New()
	value := []byte("secret")
	if err := store.Put("k", value, nil); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value[0] = 'X'

	got, _ := store.Get("k")
	if string(got) != "secret" {
		t.Errorf("stored value was aliased: %q", got)
	}

	got[0] = 'Y'
	again, _ := store.Get("k")
	if string(again) != "secret" {
		t.Errorf("returned value was aliased: %q", again)
	}
}

func TestDeleteAndExists(t *testing.T) {
	store := New()

	if err := store.Delete("missing"); err != storage.ErrNotFound {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	_ = store.Put("k", []byte("v"), nil)
	ok, err := store.Exists("k")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ok, _ = store.Exists("k")
	if ok {
		t.Error("key still exists after Delete")
	}
	if _, err := store.Get("k"); err != storage.ErrNotFound {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestListPrefix(t *testing.T) {
	store := New()
	for _, k := range []string{"b/2", "a/1", "b/1", "c"} {
		_ = store.Put(k, nil, nil)
	}

	keys, err := store.List("b/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "b/1" || keys[1] != "b/2" {
		t.Errorf("List(b/) = %v", keys)
	}

	all, _ := store.List("")
	if len(all) != 4 || all[0] != "a/1" {
		t.Errorf("List(\"\") = %v", all)
	}
}

func TestClosed(t *testing.T) {
	store := New()
	_ = store.Put("k", []byte("v"), nil)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := store.Get("k"); err != storage.ErrClosed {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
	if err := store.Put("k", nil, nil); err != storage.ErrClosed {
		t.Errorf("Put() error = %v, want ErrClosed", err)
	}
	if _, err := store.List(""); err != storage.ErrClosed {
		t.Errorf("List() error = %v, want ErrClosed", err)
	}
	if _, err := store.Exists("k"); err != storage.ErrClosed {
		t.Errorf("Exists() error = %v, want ErrClosed", err)
	}
	if err := store.Delete("k"); err != storage.ErrClosed {
		t.Errorf("Delete() error = %v, want ErrClosed", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := New()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k-%d", n%4)
			for j := 0; j < 100; j++ {
				_ = store.Put(key, []byte{byte(j)}, nil)
				_, _ = store.Get(key)
				_, _ = store.List("")
			}
		}(i)
	}
	wg.Wait()

	keys, _ := store.List("")
	if len(keys) != 4 {
		t.Errorf("expected 4 keys, got %d", len(keys))
	}
}
