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

// Package lockout implements the per-principal account lockout state
// machine.
//
// A principal moves from Clear to Accumulating on its first failed
// authentication and to Locked when the failure count reaches the threshold.
// Success returns it to Clear unconditionally. An expired lock is cleared
// lazily by the next IsLocked check. Counters live in the secret store; the
// engine keeps no state of its own.
package lockout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/storage"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

const (
	// DefaultThreshold is the failure count that locks an account.
	DefaultThreshold = 5

	// DefaultWindow is how long a lock lasts.
	DefaultWindow = 15 * time.Minute

	attemptsNamespace = "lockout/failed_attempts"
	lockedAtNamespace = "lockout/lockout_time"
)

var (
	// ErrLocked is matched by every *LockedError.
	ErrLocked = errors.New("lockout: account locked")

	// ErrInvalidPrincipal is returned for usernames that cannot key storage.
	ErrInvalidPrincipal = errors.New("lockout: invalid principal")
)

// LockedError reports a locked account and how long the lock has left.
type LockedError struct {
	Username  string
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("lockout: account %q locked for %d more minutes",
		e.Username, int(e.Remaining/time.Minute))
}

// Is matches ErrLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// State is the lockout state of one principal.
type State int

const (
	Clear State = iota
	Accumulating
	Locked
	ExpiredLocked
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Locked:
		return "locked"
	case ExpiredLocked:
		return "expired-locked"
	default:
		return "clear"
	}
}

// Store is the subset of the secret store the engine persists through.
type Store interface {
	GetInt64(key string, def int64) (int64, error)
	PutInt64(key string, value int64) error
	GetTime(key string, def time.Time) (time.Time, error)
	PutTime(key string, value time.Time) error
	Remove(key string) error
}

// LockedFunc is notified when a principal becomes locked.
type LockedFunc func(username string, attempts int, window time.Duration)

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the failure count that locks an account.
func WithThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// WithWindow sets the lock duration.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOnLocked registers a lock notifier.
func WithOnLocked(fn LockedFunc) Option {
	return func(e *Engine) { e.onLocked = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine evaluates and records lockout transitions.
type Engine struct {
	// mu serializes read-modify-write of counters. Separate processes
	// sharing a store may still race; the last write wins.
	mu        sync.Mutex
	store     Store
	threshold int
	window    time.Duration
	now       func() time.Time
	onLocked  LockedFunc
	logger    *logging.Logger
}

// New returns an engine persisting to store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	return e
}

// Threshold returns the configured failure threshold.
func (e *Engine) Threshold() int { return e.threshold }

// Window returns the configured lock duration.
func (e *Engine) Window() time.Duration { return e.window }

func keys(username string) (attempts, lockedAt string, err error) {
	if err := validation.ValidatePrincipal(username); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	return storage.NewKey(attemptsNamespace, username).String(),
		storage.NewKey(lockedAtNamespace, username).String(), nil
}

// RecordFailure counts a failed authentication. When the new count reaches
// the threshold the lock start is stamped with the current time; further
// failures while locked restamp it, extending the lock.
func (e *Engine) RecordFailure(username string) (attempts int, locked bool, err error) {
	attemptsKey, lockedAtKey, err := keys(username)
	if err != nil {
		return 0, false, err
	}

	e.mu.Lock()
	n, err := e.store.GetInt64(attemptsKey, 0)
	if err == nil {
		n++
		err = e.store.PutInt64(attemptsKey, n)
	}
	if err == nil && n >= int64(e.threshold) {
		err = e.store.PutTime(lockedAtKey, e.now())
		locked = err == nil
	}
	e.mu.Unlock()

	if err != nil {
		return 0, false, fmt.Errorf("lockout: recording failure: %w", err)
	}

	attempts = int(n)
	if locked {
		metrics.RecordLockout()
		e.logger.Warn("account locked",
			"username", validation.SanitizeForLog(username),
			"attempts", attempts,
			"window", e.window.String())
		if e.onLocked != nil {
			e.onLocked(username, attempts, e.window)
		}
	}
	return attempts, locked, nil
}

// RecordSuccess clears the counter and lock start regardless of state.
func (e *Engine) RecordSuccess(username string) error {
	return e.clear(username)
}

// Unlock is the administrative form of RecordSuccess.
func (e *Engine) Unlock(username string) error {
	if err := e.clear(username); err != nil {
		return err
	}
	e.logger.Info("account unlocked", "username", validation.SanitizeForLog(username))
	return nil
}

func (e *Engine) clear(username string) error {
	attemptsKey, lockedAtKey, err := keys(username)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Remove(attemptsKey); err != nil {
		return fmt.Errorf("lockout: clearing: %w", err)
	}
	if err := e.store.Remove(lockedAtKey); err != nil {
		return fmt.Errorf("lockout: clearing: %w", err)
	}
	return nil
}

// snapshot reads both persisted values.
func (e *Engine) snapshot(username string) (attempts int64, lockedAt time.Time, err error) {
	attemptsKey, lockedAtKey, err := keys(username)
	if err != nil {
		return 0, time.Time{}, err
	}
	if attempts, err = e.store.GetInt64(attemptsKey, 0); err != nil {
		return 0, time.Time{}, fmt.Errorf("lockout: reading attempts: %w", err)
	}
	if lockedAt, err = e.store.GetTime(lockedAtKey, time.Time{}); err != nil {
		return 0, time.Time{}, fmt.Errorf("lockout: reading lock time: %w", err)
	}
	return attempts, lockedAt, nil
}

// State classifies username without modifying anything.
func (e *Engine) State(username string) (State, error) {
	attempts, lockedAt, err := e.snapshot(username)
	if err != nil {
		return Clear, err
	}
	switch {
	case attempts <= 0:
		return Clear, nil
	case attempts < int64(e.threshold):
		return Accumulating, nil
	case e.now().Before(lockedAt.Add(e.window)):
		return Locked, nil
	default:
		return ExpiredLocked, nil
	}
}

// IsLocked reports whether username is inside its lock window. An expired
// lock is cleared as a side effect.
func (e *Engine) IsLocked(username string) (bool, error) {
	state, err := e.State(username)
	if err != nil {
		return false, err
	}
	switch state {
	case Locked:
		return true, nil
	case ExpiredLocked:
		if err := e.clear(username); err != nil {
			return false, err
		}
		e.logger.Debug("lockout expired", "username", validation.SanitizeForLog(username))
	}
	return false, nil
}

// Check returns a *LockedError when username is locked. It is meant to run
// before any password verification.
func (e *Engine) Check(username string) error {
	locked, err := e.IsLocked(username)
	if err != nil || !locked {
		return err
	}
	remaining, err := e.Remaining(username)
	if err != nil {
		return err
	}
	return &LockedError{Username: username, Remaining: remaining}
}

// Remaining returns the time left on the lock, or zero when not locked.
func (e *Engine) Remaining(username string) (time.Duration, error) {
	attempts, lockedAt, err := e.snapshot(username)
	if err != nil {
		return 0, err
	}
	if attempts < int64(e.threshold) {
		return 0, nil
	}
	if left := lockedAt.Add(e.window).Sub(e.now()); left > 0 {
		return left, nil
	}
	return 0, nil
}

// RemainingMinutes returns whole minutes left on the lock, floored.
func (e *Engine) RemainingMinutes(username string) (int, error) {
	d, err := e.Remaining(username)
	if err != nil {
		return 0, err
	}
	return int(d / time.Minute), nil
}

// Attempts returns the recorded failure count.
func (e *Engine) Attempts(username string) (int, error) {
	attempts, _, err := e.snapshot(username)
	return int(attempts), err
}
