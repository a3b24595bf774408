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

// Package biometric gates quick login on the host's local biometric check.
// The host subsystem is reached through Sensor; this package keeps the
// single linked username and the enabled flag in the secret store.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

const (
	enabledKey  = "biometric_enabled"
	usernameKey = "biometric_username"
)

var (
	ErrNotEnabled   = errors.New("Biometric authentication is not enabled")
	ErrNoLinkedUser = errors.New("No saved user for biometric login")
	ErrInvalidUser  = errors.New("biometric: invalid username")
	ErrAuthFailed   = errors.New("biometric: authentication failed")
)

// AuthError is a prompt that ended in Error.
type AuthError struct {
	Code    ErrorCode
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("biometric: %s (code %d)", e.Message, int(e.Code))
}

// Is matches ErrAuthFailed.
func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// Sensor is the host biometric subsystem.
type Sensor interface {
	// Status reports whether strong biometrics or a device credential can be used.
	Status(ctx context.Context) Status

	// Authenticate shows prompt and sends results until the prompt ends.
	// It returns after its last send and must stop sending once ctx is done.
	Authenticate(ctx context.Context, prompt Prompt, results chan<- Result)
}

// Store is the subset of the secret store the gate persists through.
type Store interface {
	GetBool(key string, def bool) (bool, error)
	PutBool(key string, value bool) error
	GetString(key, def string) (string, error)
	PutString(key, value string) error
	Remove(key string) error
}

// EventLogger receives security events.
type EventLogger interface {
	LogEvent(kind securitylog.Kind, username, detail string)
}

// Option configures a Gate.
type Option func(*Gate)

// WithEvents sets the security event sink.
func WithEvents(events EventLogger) Option {
	return func(g *Gate) { g.events = events }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate runs biometric prompts and manages the linked user.
type Gate struct {
	// mu keeps the enabled flag and the link consistent with each other.
	mu     sync.Mutex
	sensor Sensor
	store  Store
	events EventLogger
	logger *logging.Logger
}

// New returns a gate over sensor and store.
func New(sensor Sensor, store Store, opts ...Option) *Gate {
	g := &Gate{sensor: sensor, store: store}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDefault(g.logger)
	return g
}

func (g *Gate) event(kind securitylog.Kind, username, detail string) {
	if g.events != nil {
		g.events.LogEvent(kind, username, detail)
	}
}

// CheckAvailability asks the host for its biometric status.
func (g *Gate) CheckAvailability(ctx context.Context) Status {
	return g.sensor.Status(ctx)
}

// Authenticate starts one prompt. The returned channel yields zero or more
// Failed results, then exactly one Success or Error, and is then closed.
// Canceling ctx ends the prompt with Error{Code: ErrorCanceled}. Callers must
// receive until the channel is closed.
func (g *Gate) Authenticate(ctx context.Context, prompt Prompt) <-chan Result {
	if prompt == (Prompt{}) {
		prompt = DefaultPrompt()
	}

	ctx, cancel := context.WithCancel(ctx)
	host := make(chan Result)
	out := make(chan Result, 1)

	go func() {
		defer close(host)
		g.sensor.Authenticate(ctx, prompt, host)
	}()

	go func() {
		defer close(out)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				out <- g.finish(Result{Outcome: Error, Code: ErrorCanceled, Message: "Authentication canceled"})
				return

			case r, ok := <-host:
				if !ok {
					r = Result{Outcome: Error, Code: ErrorUnableToProcess, Message: "Biometric prompt closed without a result"}
					if ctx.Err() != nil {
						r = Result{Outcome: Error, Code: ErrorCanceled, Message: "Authentication canceled"}
					}
					out <- g.finish(r)
					return
				}
				if !r.Outcome.Terminal() {
					r = Result{Outcome: Failed, Message: r.Message}
					metrics.RecordBiometricResult(r.Outcome.String())
					g.event(securitylog.BiometricFailed, "", "Biometric sample not recognized")
					select {
					case out <- r:
					case <-ctx.Done():
					}
					continue
				}
				// Anything the host sends after this is dropped.
				out <- g.finish(r)
				return
			}
		}
	}()

	return out
}

func (g *Gate) finish(r Result) Result {
	metrics.RecordBiometricResult(r.Outcome.String())
	if r.Outcome == Error && !r.Code.Canceled() {
		g.event(securitylog.BiometricFailed, "", fmt.Sprintf("Biometric error %d: %s", int(r.Code), r.Message))
	}
	return r
}

// QuickLogin verifies the device user and returns the linked username. It
// performs no password check.
func (g *Gate) QuickLogin(ctx context.Context) (string, error) {
	g.mu.Lock()
	enabled, err := g.store.GetBool(enabledKey, false)
	var username string
	if err == nil && enabled {
		username, err = g.store.GetString(usernameKey, "")
	}
	g.mu.Unlock()

	switch {
	case err != nil:
		return "", fmt.Errorf("biometric: reading settings: %w", err)
	case !enabled:
		return "", ErrNotEnabled
	case username == "":
		return "", ErrNoLinkedUser
	}

	for r := range g.Authenticate(ctx, QuickLoginPrompt()) {
		switch r.Outcome {
		case Success:
			g.event(securitylog.LoginSuccess, username, "Biometric quick login")
			g.logger.Info("biometric quick login", "username", validation.SanitizeForLog(username))
			return username, nil
		case Error:
			return "", &AuthError{Code: r.Code, Message: r.Message}
		}
	}
	return "", &AuthError{Code: ErrorUnableToProcess, Message: "Biometric prompt closed without a result"}
}

// IsEnabled reports the enabled flag.
func (g *Gate) IsEnabled() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.GetBool(enabledKey, false)
}

// LinkedUsername returns the linked user, or "" when none is linked.
func (g *Gate) LinkedUsername() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.GetString(usernameKey, "")
}

// SaveUsernameForBiometric links username, replacing any previous link.
func (g *Gate) SaveUsernameForBiometric(username string) error {
	if err := validation.ValidatePrincipal(username); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.PutString(usernameKey, username)
}

// Enable links username and turns quick login on.
func (g *Gate) Enable(username string) error {
	if err := validation.ValidatePrincipal(username); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	g.mu.Lock()
	err := g.store.PutString(usernameKey, username)
	if err == nil {
		err = g.store.PutBool(enabledKey, true)
	}
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("biometric: enabling: %w", err)
	}

	g.event(securitylog.BiometricEnabled, username, "")
	return nil
}

// SetEnabled sets the enabled flag. Disabling also removes the link.
func (g *Gate) SetEnabled(enabled bool) error {
	if !enabled {
		return g.ClearBiometricData()
	}

	g.mu.Lock()
	username, _ := g.store.GetString(usernameKey, "")
	err := g.store.PutBool(enabledKey, true)
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("biometric: enabling: %w", err)
	}
	g.event(securitylog.BiometricEnabled, username, "")
	return nil
}

// ClearBiometricData disables quick login and removes the link. The flag is
// cleared first so a partial failure never leaves an enabled gate without
// its user.
func (g *Gate) ClearBiometricData() error {
	g.mu.Lock()
	username, _ := g.store.GetString(usernameKey, "")
	err := g.store.PutBool(enabledKey, false)
	if err == nil {
		err = g.store.Remove(usernameKey)
	}
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("biometric: clearing: %w", err)
	}

	g.event(securitylog.BiometricDisabled, username, "")
	return nil
}
