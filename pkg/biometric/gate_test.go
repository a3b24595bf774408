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

package biometric

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/storage/memory"
)

type fakeSensor struct {
	status Status
	script []Result
	// hold keeps the prompt open after the script until ctx is done.
	hold bool

	mu      sync.Mutex
	prompts []Prompt
}

func (f *fakeSensor) Status(context.Context) Status { return f.status }

func (f *fakeSensor) Authenticate(ctx context.Context, prompt Prompt, results chan<- Result) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	for _, r := range f.script {
		select {
		case results <- r:
		case <-ctx.Done():
			return
		}
	}
	if f.hold {
		<-ctx.Done()
	}
}

func (f *fakeSensor) lastPrompt() Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

type event struct {
	kind     securitylog.Kind
	username string
	detail   string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeEvents) LogEvent(kind securitylog.Kind, username, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{kind, username, detail})
}

func (f *fakeEvents) kinds() []securitylog.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []securitylog.Kind
	for _, e := range f.events {
		out = append(out, e.kind)
	}
	return out
}

func newStore(t *testing.T) *secretstore.Store {
	t.Helper()
	p, err := keyprovider.NewStatic(bytes.Repeat([]byte{9}, keyprovider.KeySize))
	require.NoError(t, err)
	s := secretstore.New(memory.New(), p, secretstore.WithLogger(logging.NewDiscardLogger()))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newGate(t *testing.T, sensor *fakeSensor) (*Gate, *fakeEvents) {
	t.Helper()
	events := &fakeEvents{}
	return New(sensor, newStore(t), WithEvents(events), WithLogger(logging.NewDiscardLogger())), events
}

func collect(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var out []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatal("result channel was not closed")
		}
	}
}

func TestStatusMessages(t *testing.T) {
	tests := []struct {
		status Status
		msg    string
	}{
		{Available, "Biometric authentication is available"},
		{NoHardware, "This device doesn't have biometric hardware"},
		{HardwareUnavailable, "Biometric hardware is currently unavailable"},
		{NoneEnrolled, "No biometric credentials enrolled. Please set up fingerprint or face unlock in device settings"},
		{SecurityUpdateRequired, "Security update required for biometric authentication"},
		{Unsupported, "Biometric authentication is not supported"},
		{Unknown, "Biometric status unknown"},
		{Status(99), "Biometric status unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.status.Message())
		})
	}
}

func TestCheckAvailability(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{status: NoneEnrolled})
	assert.Equal(t, NoneEnrolled, g.CheckAvailability(context.Background()))
}

func TestAuthenticateFailedThenSuccess(t *testing.T) {
	sensor := &fakeSensor{script: []Result{
		{Outcome: Failed},
		{Outcome: Failed},
		{Outcome: Success},
	}}
	g, events := newGate(t, sensor)

	results := collect(t, g.Authenticate(context.Background(), Prompt{}))
	require.Len(t, results, 3)
	assert.Equal(t, Failed, results[0].Outcome)
	assert.Equal(t, Failed, results[1].Outcome)
	assert.Equal(t, Success, results[2].Outcome)

	assert.Equal(t, DefaultPrompt(), sensor.lastPrompt())
	assert.Equal(t, []securitylog.Kind{securitylog.BiometricFailed, securitylog.BiometricFailed}, events.kinds())
}

func TestAuthenticateSingleTerminal(t *testing.T) {
	sensor := &fakeSensor{script: []Result{
		{Outcome: Error, Code: ErrorLockout, Message: "Too many attempts"},
		{Outcome: Success},
		{Outcome: Failed},
	}}
	g, events := newGate(t, sensor)

	results := collect(t, g.Authenticate(context.Background(), Prompt{Title: "t"}))
	require.Len(t, results, 1)
	assert.Equal(t, Error, results[0].Outcome)
	assert.Equal(t, ErrorLockout, results[0].Code)
	assert.Equal(t, []securitylog.Kind{securitylog.BiometricFailed}, events.kinds())
}

func TestAuthenticateCancel(t *testing.T) {
	sensor := &fakeSensor{hold: true}
	g, events := newGate(t, sensor)

	ctx, cancel := context.WithCancel(context.Background())
	ch := g.Authenticate(ctx, Prompt{})
	cancel()

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.Equal(t, Error, results[0].Outcome)
	assert.Equal(t, ErrorCanceled, results[0].Code)
	assert.Empty(t, events.kinds(), "cancellation is not a failure")
}

func TestAuthenticateHostEndsWithoutResult(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{})

	results := collect(t, g.Authenticate(context.Background(), Prompt{}))
	require.Len(t, results, 1)
	assert.Equal(t, Error, results[0].Outcome)
	assert.Equal(t, ErrorUnableToProcess, results[0].Code)
}

func TestQuickLoginRequiresEnabled(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{script: []Result{{Outcome: Success}}})

	_, err := g.QuickLogin(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)
	assert.Equal(t, "Biometric authentication is not enabled", err.Error())

	require.NoError(t, g.SetEnabled(true))
	_, err = g.QuickLogin(context.Background())
	assert.ErrorIs(t, err, ErrNoLinkedUser)
	assert.Equal(t, "No saved user for biometric login", err.Error())
}

func TestQuickLoginSuccess(t *testing.T) {
	sensor := &fakeSensor{script: []Result{{Outcome: Failed}, {Outcome: Success}}}
	g, events := newGate(t, sensor)
	require.NoError(t, g.Enable("alice"))

	username, err := g.QuickLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.Equal(t, QuickLoginPrompt(), sensor.lastPrompt())
	assert.Equal(t, []securitylog.Kind{
		securitylog.BiometricEnabled,
		securitylog.BiometricFailed,
		securitylog.LoginSuccess,
	}, events.kinds())
}

func TestQuickLoginHostError(t *testing.T) {
	sensor := &fakeSensor{script: []Result{{Outcome: Error, Code: ErrorUserCanceled, Message: "Cancelled by user"}}}
	g, _ := newGate(t, sensor)
	require.NoError(t, g.Enable("bob"))

	_, err := g.QuickLogin(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ErrorUserCanceled, authErr.Code)
	assert.Equal(t, "Cancelled by user", authErr.Message)
}

func TestLinkManagement(t *testing.T) {
	g, events := newGate(t, &fakeSensor{})

	require.NoError(t, g.SaveUsernameForBiometric("carol"))
	require.NoError(t, g.SaveUsernameForBiometric("dave"))
	user, err := g.LinkedUsername()
	require.NoError(t, err)
	assert.Equal(t, "dave", user, "a new link replaces the old one")

	enabled, err := g.IsEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, g.SetEnabled(true))
	enabled, err = g.IsEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, g.SetEnabled(false))
	enabled, err = g.IsEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)
	user, err = g.LinkedUsername()
	require.NoError(t, err)
	assert.Empty(t, user, "disabling also unlinks")

	assert.Equal(t, []securitylog.Kind{securitylog.BiometricEnabled, securitylog.BiometricDisabled}, events.kinds())
}

func TestClearBiometricData(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{})
	require.NoError(t, g.Enable("erin"))
	require.NoError(t, g.ClearBiometricData())

	enabled, err := g.IsEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)
	user, err := g.LinkedUsername()
	require.NoError(t, err)
	assert.Empty(t, user)

	_, err = g.QuickLogin(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestInvalidUsername(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{})
	assert.ErrorIs(t, g.Enable(""), ErrInvalidUser)
	assert.ErrorIs(t, g.SaveUsernameForBiometric("bad\x00name"), ErrInvalidUser)
}

func TestConcurrentEnableAndClearStayConsistent(t *testing.T) {
	g, _ := newGate(t, &fakeSensor{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Enable("frank"))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, g.ClearBiometricData())
		}()
	}
	wg.Wait()

	enabled, err := g.IsEnabled()
	require.NoError(t, err)
	user, err := g.LinkedUsername()
	require.NoError(t, err)
	assert.Equal(t, enabled, user != "")
}

func TestOutcomeAndCode(t *testing.T) {
	assert.True(t, Success.Terminal())
	assert.True(t, Error.Terminal())
	assert.False(t, Failed.Terminal())
	assert.Equal(t, "failed", Failed.String())
	assert.True(t, ErrorNegativeButton.Canceled())
	assert.False(t, ErrorLockout.Canceled())
}
