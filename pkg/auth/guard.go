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

// Package auth composes the credential checks into a login guard. Every
// login runs the same steps in the same order: input validation, rate
// limiting, the lockout check, password verification, and finally audit and
// lockout bookkeeping. A locked account is rejected before its password is
// looked at.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/password"
	"github.com/jeremyhahn/go-trustgate/pkg/ratelimit"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

var (
	ErrInvalidUsername    = errors.New("auth: invalid username")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrRateLimited        = errors.New("auth: too many attempts")
	ErrWeakPassword       = errors.New("auth: password does not meet strength requirements")
	ErrUserExists         = errors.New("auth: user already exists")

	// ErrUnavailable is returned when lockout or credential state cannot be
	// read. Logins fail closed.
	ErrUnavailable = errors.New("auth: credential state unavailable")
)

// Option configures a Guard.
type Option func(*Guard)

// WithHasher replaces password.Default().
func WithHasher(h *password.Hasher) Option {
	return func(g *Guard) { g.hasher = h }
}

// WithRateLimiter throttles attempts per username.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(g *Guard) { g.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// Guard authenticates users.
type Guard struct {
	creds   CredentialStore
	lockout *lockout.Engine
	events  *securitylog.Log
	hasher  *password.Hasher
	limiter *ratelimit.Limiter
	logger  *logging.Logger

	// dummy is verified against for unknown users so both paths cost one hash.
	dummyOnce sync.Once
	dummy     string
}

// New returns a guard. events must be built over the same engine so failed
// logins recorded there are counted.
func New(creds CredentialStore, engine *lockout.Engine, events *securitylog.Log, opts ...Option) *Guard {
	g := &Guard{creds: creds, lockout: engine, events: events}
	for _, opt := range opts {
		opt(g)
	}
	if g.hasher == nil {
		g.hasher = password.Default()
	}
	g.logger = logging.OrDefault(g.logger)
	return g
}

func (g *Guard) dummyHash() string {
	g.dummyOnce.Do(func() {
		h, err := g.hasher.Hash("trustgate-unknown-user")
		if err == nil {
			g.dummy = h
		}
	})
	return g.dummy
}

// Login checks username and pw. It returns nil on success, a
// *lockout.LockedError while the account is locked, ErrInvalidCredentials
// for a wrong password or unknown user, and ErrInvalidUsername or
// ErrRateLimited before any credential is consulted.
func (g *Guard) Login(ctx context.Context, username, pw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !validation.IsValidUsername(username) {
		metrics.RecordLoginAttempt(metrics.LoginInvalid)
		return ErrInvalidUsername
	}

	if !g.limiter.Allow("login:" + username) {
		metrics.RecordLoginAttempt(metrics.LoginThrottled)
		g.events.LogEvent(securitylog.SuspiciousActivity, username, "Login rate limit exceeded")
		return ErrRateLimited
	}

	if err := g.checkLockout(username); err != nil {
		return err
	}

	hash, err := g.verify(username, pw)
	if err != nil {
		return err
	}

	if err := g.events.LogSuccessfulLogin(username); err != nil {
		g.logger.Warn("login succeeded but lockout counters were not cleared",
			"username", validation.SanitizeForLog(username),
			"error", err.Error())
	}
	metrics.RecordLoginAttempt(metrics.LoginSuccess)
	g.upgrade(username, pw, hash)
	return nil
}

func (g *Guard) checkLockout(username string) error {
	err := g.lockout.Check(username)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lockout.ErrLocked):
		metrics.RecordLoginAttempt(metrics.LoginLocked)
		return err
	default:
		g.logger.Error(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// verify checks pw against the stored hash and records a failure when it
// does not match. It returns the stored hash on success.
func (g *Guard) verify(username, pw string) (string, error) {
	hash, ok, err := g.creds.PasswordHash(username)
	if err != nil {
		g.logger.Error(err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !ok {
		g.hasher.Verify(pw, g.dummyHash())
	} else if g.hasher.Verify(pw, hash) {
		return hash, nil
	}

	locked, err := g.events.LogFailedLogin(username, securitylog.DefaultFailureReason)
	if err != nil {
		g.logger.Warn("failed login not counted",
			"username", validation.SanitizeForLog(username),
			"error", err.Error())
	}
	if locked {
		metrics.RecordLoginAttempt(metrics.LoginLocked)
		remaining, rerr := g.lockout.Remaining(username)
		if rerr != nil {
			remaining = g.lockout.Window()
		}
		return "", &lockout.LockedError{Username: username, Remaining: remaining}
	}
	metrics.RecordLoginAttempt(metrics.LoginFailed)
	return "", ErrInvalidCredentials
}

// upgrade rehashes a password stored with weaker parameters.
func (g *Guard) upgrade(username, pw, hash string) {
	if !g.hasher.NeedsRehash(hash) {
		return
	}
	fresh, err := g.hasher.Hash(pw)
	if err == nil {
		err = g.creds.SetPasswordHash(username, fresh)
	}
	if err != nil {
		g.logger.Warn("password rehash failed", "username", validation.SanitizeForLog(username), "error", err.Error())
		return
	}
	g.logger.Debug("password rehashed", "username", validation.SanitizeForLog(username))
}

// Register creates a user with a strong password.
func (g *Guard) Register(ctx context.Context, username, pw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validation.IsValidUsername(username) {
		return ErrInvalidUsername
	}
	if !validation.IsStrongPassword(pw) {
		return ErrWeakPassword
	}

	_, exists, err := g.creds.PasswordHash(username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists {
		return ErrUserExists
	}

	hash, err := g.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("auth: hashing password: %w", err)
	}
	if err := g.creds.SetPasswordHash(username, hash); err != nil {
		return err
	}
	g.events.LogEvent(securitylog.AccountCreated, username, "")
	return nil
}

// ChangePassword replaces the password after verifying the current one.
// A wrong current password counts as a failed login.
func (g *Guard) ChangePassword(ctx context.Context, username, current, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validation.IsValidUsername(username) {
		return ErrInvalidUsername
	}
	if err := g.checkLockout(username); err != nil {
		return err
	}
	if _, err := g.verify(username, current); err != nil {
		return err
	}
	if !validation.IsStrongPassword(next) {
		return ErrWeakPassword
	}

	hash, err := g.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("auth: hashing password: %w", err)
	}
	if err := g.creds.SetPasswordHash(username, hash); err != nil {
		return err
	}
	g.events.LogEvent(securitylog.PasswordChanged, username, "")
	return nil
}

// DeleteAccount removes a user after verifying the password, and clears
// its lockout state.
func (g *Guard) DeleteAccount(ctx context.Context, username, pw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validation.IsValidUsername(username) {
		return ErrInvalidUsername
	}
	if err := g.checkLockout(username); err != nil {
		return err
	}
	if _, err := g.verify(username, pw); err != nil {
		return err
	}

	if err := g.creds.DeleteUser(username); err != nil {
		return fmt.Errorf("auth: deleting user: %w", err)
	}
	if err := g.lockout.RecordSuccess(username); err != nil {
		g.logger.Warn("lockout state not cleared for deleted user", "error", err.Error())
	}
	g.events.LogEvent(securitylog.AccountDeleted, username, "")
	return nil
}

// Logout records the end of a session.
func (g *Guard) Logout(username string) {
	g.events.LogEvent(securitylog.Logout, username, "")
}
