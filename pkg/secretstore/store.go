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

// Package secretstore is the durable, encrypted key/value store every other
// trustgate component keeps its state in.
//
// Values are typed (string, int64, bool, timestamp), sealed with an AEAD
// under a subkey of the host managed master key, and written under an HMAC
// of their logical key. When the key facility is unavailable the store keeps
// working on an unencrypted fallback and reports itself degraded; callers
// surface that through health and metrics.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-trustgate/pkg/crypto/aead"
	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/storage"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

const (
	component = "secretstore"

	// storeIDKey holds the per-store HKDF salt.
	storeIDKey = "meta/store-id"

	encryptedNamespace = "enc"
	plaintextNamespace = "plain"
)

// Mode describes how entries are protected.
type Mode int

const (
	// ModeUnopened is reported before Open.
	ModeUnopened Mode = iota

	// ModeEncrypted means entries are sealed with a key from the provider.
	ModeEncrypted

	// ModeDegraded means the provider failed and entries are stored in plaintext.
	ModeDegraded
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeEncrypted:
		return "encrypted"
	case ModeDegraded:
		return "degraded"
	default:
		return "unopened"
	}
}

// Status is a point-in-time description of the store for health output.
type Status struct {
	Mode      Mode
	Provider  string
	Algorithm string
	Reason    string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithAlgorithm overrides the automatic AEAD selection for new writes.
// aead.Auto keeps the automatic choice.
func WithAlgorithm(alg aead.Algorithm) Option {
	return func(s *Store) { s.alg = alg }
}

// Store is an encrypted key/value store over a storage.Backend.
// It is safe for concurrent use; writes are atomic per key and the last
// writer wins.
type Store struct {
	mu       sync.RWMutex
	backend  storage.Backend
	provider keyprovider.Provider
	logger   *logging.Logger
	alg      aead.Algorithm

	opened bool
	closed bool
	mode   Mode
	reason string
	keys   *keys
}

// New returns an unopened store. Call Open before use.
func New(backend storage.Backend, provider keyprovider.Provider, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		provider: provider,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger)
	if s.alg == aead.Auto {
		s.alg = aead.Preferred()
	}
	if s.provider == nil {
		s.provider = keyprovider.Unavailable{}
	}
	return s
}

// Open obtains the master key and prepares the store. It is idempotent: once
// Open has succeeded further calls return nil without contacting the
// provider. A provider failure is not an error; the store degrades to
// plaintext, logs a warning and raises the storage_degraded gauge. Backend
// failures are returned and Open may be retried.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}

	start := time.Now()
	master, err := s.provider.MasterKey(ctx)
	if err != nil {
		s.degrade(err)
		metrics.RecordOperation(metrics.OpOpen, component, metrics.StatusSuccess, time.Since(start).Seconds())
		return nil
	}

	storeID, err := s.loadStoreID()
	if err != nil {
		metrics.RecordOperation(metrics.OpOpen, component, metrics.StatusError, time.Since(start).Seconds())
		return err
	}

	k, err := deriveKeys(master, storeID)
	if err != nil {
		s.degrade(err)
		metrics.RecordOperation(metrics.OpOpen, component, metrics.StatusSuccess, time.Since(start).Seconds())
		return nil
	}

	s.keys = k
	s.mode = ModeEncrypted
	s.opened = true
	metrics.SetKeyProviderHealth(s.provider.Name(), true)
	metrics.SetStorageDegraded(false)
	metrics.RecordOperation(metrics.OpOpen, component, metrics.StatusSuccess, time.Since(start).Seconds())
	s.logger.Info("secret store opened",
		"mode", s.mode.String(),
		"provider", s.provider.Name(),
		"algorithm", s.alg.String())
	return nil
}

// degrade switches to the plaintext fallback. Caller holds mu.
func (s *Store) degrade(cause error) {
	s.mode = ModeDegraded
	s.reason = cause.Error()
	s.opened = true
	metrics.SetKeyProviderHealth(s.provider.Name(), false)
	metrics.SetStorageDegraded(true)
	s.logger.Warn("secret store degraded: secrets will be stored unencrypted",
		"provider", s.provider.Name(),
		"error", validation.SanitizeForLog(cause.Error()))
}

func (s *Store) loadStoreID() (string, error) {
	data, err := s.backend.Get(storeIDKey)
	if err == nil {
		id, perr := uuid.ParseBytes(data)
		if perr != nil {
			return "", fmt.Errorf("%w: store id: %v", ErrCorrupt, perr)
		}
		return id.String(), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("secretstore: reading store id: %w", err)
	}

	id := uuid.New().String()
	if err := s.backend.Put(storeIDKey, []byte(id), storage.DefaultOptions()); err != nil {
		return "", fmt.Errorf("secretstore: writing store id: %w", err)
	}
	return id, nil
}

// Degraded reports whether the store is running on the plaintext fallback.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode == ModeDegraded
}

// Mode returns the protection mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Status describes the store.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Mode: s.mode, Provider: s.provider.Name(), Reason: s.reason}
	if s.mode == ModeEncrypted {
		st.Algorithm = s.alg.String()
	}
	return st
}

// Close destroys the derived keys and closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.keys != nil {
		s.keys.destroy()
		s.keys = nil
	}
	return s.backend.Close()
}

// ready validates key and the store state. Caller holds at least a read lock.
func (s *Store) ready(key string) error {
	if s.closed {
		return ErrClosed
	}
	if !s.opened {
		return ErrNotOpen
	}
	if err := validation.ValidateStoreKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

// entry maps a logical key to its backend name in the current mode.
func (s *Store) entry(key string) string {
	if s.mode == ModeEncrypted {
		return encryptedNamespace + "/" + s.keys.entryName(key)
	}
	return storage.NewKey(plaintextNamespace, key).String()
}

func (s *Store) put(key string, msg proto.Message) (err error) {
	start := time.Now()
	defer func() { s.record(metrics.OpPut, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(key); err != nil {
		return err
	}

	data, err := encodeValue(msg)
	if err != nil {
		return fmt.Errorf("secretstore: encoding %q: %w", validation.SanitizeForLog(key), err)
	}
	if s.mode == ModeEncrypted {
		if data, err = s.keys.seal(s.alg, key, data); err != nil {
			return fmt.Errorf("secretstore: sealing: %w", err)
		}
	}
	return s.backend.Put(s.entry(key), data, storage.DefaultOptions())
}

// get returns the stored message or nil when absent.
func (s *Store) get(key string) (msg proto.Message, err error) {
	start := time.Now()
	defer func() { s.record(metrics.OpGet, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(key); err != nil {
		return nil, err
	}

	data, err := s.backend.Get(s.entry(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: reading: %w", err)
	}
	if s.mode == ModeEncrypted {
		if data, err = s.keys.open(key, data); err != nil {
			return nil, err
		}
	}
	return decodeValue(data)
}

func (s *Store) record(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		switch {
		case errors.Is(err, ErrCorrupt):
			metrics.RecordError(op, component, "corrupt")
		case errors.Is(err, ErrTypeMismatch):
			metrics.RecordError(op, component, "type_mismatch")
		case errors.Is(err, ErrInvalidKey):
			metrics.RecordError(op, component, "invalid_key")
		}
	}
	metrics.RecordOperation(op, component, status, time.Since(start).Seconds())
}

// PutString stores a string. The value is durable when PutString returns.
func (s *Store) PutString(key, value string) error {
	return s.put(key, wrapperspb.String(value))
}

// PutInt64 stores an integer.
func (s *Store) PutInt64(key string, value int64) error {
	return s.put(key, wrapperspb.Int64(value))
}

// PutBool stores a boolean.
func (s *Store) PutBool(key string, value bool) error {
	return s.put(key, wrapperspb.Bool(value))
}

// PutTime stores a timestamp with nanosecond precision.
func (s *Store) PutTime(key string, value time.Time) error {
	return s.put(key, timestamppb.New(value))
}

// GetString returns the string under key, or def when key is absent.
func (s *Store) GetString(key, def string) (string, error) {
	msg, err := s.get(key)
	if err != nil || msg == nil {
		return def, err
	}
	return asString(msg)
}

// GetInt64 returns the integer under key, or def when key is absent.
func (s *Store) GetInt64(key string, def int64) (int64, error) {
	msg, err := s.get(key)
	if err != nil || msg == nil {
		return def, err
	}
	return asInt64(msg)
}

// GetBool returns the boolean under key, or def when key is absent.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	msg, err := s.get(key)
	if err != nil || msg == nil {
		return def, err
	}
	return asBool(msg)
}

// GetTime returns the timestamp under key, or def when key is absent.
func (s *Store) GetTime(key string, def time.Time) (time.Time, error) {
	msg, err := s.get(key)
	if err != nil || msg == nil {
		return def, err
	}
	return asTime(msg)
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) (err error) {
	start := time.Now()
	defer func() { s.record(metrics.OpRemove, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(key); err != nil {
		return err
	}
	if err := s.backend.Delete(s.entry(key)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("secretstore: removing: %w", err)
	}
	return nil
}

// Contains reports whether key holds a value.
func (s *Store) Contains(key string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.record(metrics.OpContains, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(key); err != nil {
		return false, err
	}
	return s.backend.Exists(s.entry(key))
}

// Clear removes every entry, encrypted or plaintext. The store ID survives so
// later writes keep using the same subkeys.
func (s *Store) Clear() (err error) {
	start := time.Now()
	defer func() { s.record(metrics.OpClear, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.opened {
		return ErrNotOpen
	}

	for _, ns := range []string{encryptedNamespace, plaintextNamespace} {
		names, err := s.backend.List(storage.NamespacePrefix(ns))
		if err != nil {
			return fmt.Errorf("secretstore: listing: %w", err)
		}
		for _, name := range names {
			if !strings.HasPrefix(name, storage.NamespacePrefix(ns)) {
				continue
			}
			if err := s.backend.Delete(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("secretstore: clearing: %w", err)
			}
		}
	}
	s.logger.Info("secret store cleared", "mode", s.mode.String())
	return nil
}
