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

package auth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/password"
	"github.com/jeremyhahn/go-trustgate/pkg/ratelimit"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/storage/memory"
)

const strongPassword = "Str0ng!Passw0rd"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	guard  *Guard
	log    *securitylog.Log
	clock  *clock
	creds  *SecretStoreCredentials
	engine *lockout.Engine
	store  *secretstore.Store
}

func hasher(t *testing.T, cost int) *password.Hasher {
	t.Helper()
	h, err := password.New(cost)
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	discard := logging.NewDiscardLogger()

	p, err := keyprovider.NewStatic(bytes.Repeat([]byte{5}, keyprovider.KeySize))
	require.NoError(t, err)
	store := secretstore.New(memory.New(), p, secretstore.WithLogger(discard))
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := lockout.New(store, lockout.WithClock(c.Now), lockout.WithLogger(discard))
	log := securitylog.New(afero.NewMemMapFs(), "/logs", engine,
		securitylog.WithClock(c.Now), securitylog.WithLogger(discard))
	creds := NewSecretStoreCredentials(store)

	opts = append([]Option{WithHasher(hasher(t, bcrypt.MinCost)), WithLogger(discard)}, opts...)
	return &fixture{
		guard:  New(creds, engine, log, opts...),
		log:    log,
		clock:  c,
		creds:  creds,
		engine: engine,
		store:  store,
	}
}

func (f *fixture) kinds(t *testing.T) []securitylog.Kind {
	t.Helper()
	entries, err := f.log.Entries(1000)
	require.NoError(t, err)
	var out []securitylog.Kind
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guard.Register(ctx, "alice", strongPassword))
	require.NoError(t, f.guard.Login(ctx, "alice", strongPassword))
	f.guard.Logout("alice")

	assert.Equal(t, []securitylog.Kind{
		securitylog.AccountCreated,
		securitylog.LoginSuccess,
		securitylog.Logout,
	}, f.kinds(t))

	hash, ok, err := f.creds.PasswordHash("alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, password.IsValidHash(hash))
	assert.NotContains(t, hash, strongPassword)
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.guard.Register(ctx, "ab", strongPassword), ErrInvalidUsername)
	assert.ErrorIs(t, f.guard.Register(ctx, "bob", "password"), ErrWeakPassword)

	require.NoError(t, f.guard.Register(ctx, "bob", strongPassword))
	assert.ErrorIs(t, f.guard.Register(ctx, "bob", strongPassword), ErrUserExists)
}

func TestInvalidUsernameIsNotASecurityEvent(t *testing.T) {
	f := newFixture(t)

	err := f.guard.Login(context.Background(), "bad name!", strongPassword)
	assert.ErrorIs(t, err, ErrInvalidUsername)
	assert.Empty(t, f.kinds(t))
}

func TestLockoutFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "carol", strongPassword))

	for i := 0; i < lockout.DefaultThreshold-1; i++ {
		err := f.guard.Login(ctx, "carol", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	err := f.guard.Login(ctx, "carol", "wrong")
	var locked *lockout.LockedError
	require.True(t, errors.As(err, &locked), "fifth failure locks: %v", err)
	assert.Equal(t, lockout.DefaultWindow, locked.Remaining)

	// The correct password does not help while locked.
	f.clock.Advance(5 * time.Minute)
	err = f.guard.Login(ctx, "carol", strongPassword)
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 10*time.Minute, locked.Remaining)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.guard.Login(ctx, "carol", strongPassword))

	attempts, err := f.engine.Attempts("carol")
	require.NoError(t, err)
	assert.Zero(t, attempts)

	kinds := f.kinds(t)
	assert.Contains(t, kinds, securitylog.LoginLocked)
	assert.Equal(t, securitylog.LoginSuccess, kinds[len(kinds)-1])
}

func TestUnknownUserCountsAsFailure(t *testing.T) {
	f := newFixture(t)

	err := f.guard.Login(context.Background(), "nobody", strongPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	attempts, err := f.engine.Attempts("nobody")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 2})
	t.Cleanup(limiter.Stop)
	f := newFixture(t, WithRateLimiter(limiter))
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "dave", strongPassword))

	require.NoError(t, f.guard.Login(ctx, "dave", strongPassword))
	require.NoError(t, f.guard.Login(ctx, "dave", strongPassword))
	assert.ErrorIs(t, f.guard.Login(ctx, "dave", strongPassword), ErrRateLimited)

	kinds := f.kinds(t)
	assert.Equal(t, securitylog.SuspiciousActivity, kinds[len(kinds)-1])

	// Other principals have their own budget.
	assert.ErrorIs(t, f.guard.Login(ctx, "erin", "x"), ErrInvalidCredentials)
}

type brokenLockoutStore struct{}

func (brokenLockoutStore) GetInt64(string, int64) (int64, error) { return 0, errors.New("disk gone") }
func (brokenLockoutStore) PutInt64(string, int64) error          { return errors.New("disk gone") }
func (brokenLockoutStore) GetTime(string, time.Time) (time.Time, error) {
	return time.Time{}, errors.New("disk gone")
}
func (brokenLockoutStore) PutTime(string, time.Time) error { return errors.New("disk gone") }
func (brokenLockoutStore) Remove(string) error             { return errors.New("disk gone") }

func TestLockoutStoreFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "frank", strongPassword))

	discard := logging.NewDiscardLogger()
	engine := lockout.New(brokenLockoutStore{}, lockout.WithLogger(discard))
	log := securitylog.New(afero.NewMemMapFs(), "/logs", engine, securitylog.WithLogger(discard))
	g := New(f.creds, engine, log, WithHasher(hasher(t, bcrypt.MinCost)), WithLogger(discard))

	err := g.Login(ctx, "frank", strongPassword)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "gina", strongPassword))

	const next = "An0ther!Secret"
	assert.ErrorIs(t, f.guard.ChangePassword(ctx, "gina", "wrong", next), ErrInvalidCredentials)
	assert.ErrorIs(t, f.guard.ChangePassword(ctx, "gina", strongPassword, "weak"), ErrWeakPassword)
	require.NoError(t, f.guard.ChangePassword(ctx, "gina", strongPassword, next))

	assert.ErrorIs(t, f.guard.Login(ctx, "gina", strongPassword), ErrInvalidCredentials)
	require.NoError(t, f.guard.Login(ctx, "gina", next))
	assert.Contains(t, f.kinds(t), securitylog.PasswordChanged)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "henry", strongPassword))

	assert.ErrorIs(t, f.guard.DeleteAccount(ctx, "henry", "wrong"), ErrInvalidCredentials)
	require.NoError(t, f.guard.DeleteAccount(ctx, "henry", strongPassword))

	_, ok, err := f.creds.PasswordHash("henry")
	require.NoError(t, err)
	assert.False(t, ok)

	attempts, err := f.engine.Attempts("henry")
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.Contains(t, f.kinds(t), securitylog.AccountDeleted)
}

func TestLoginRehashesWeakerHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.guard.Register(ctx, "ivan", strongPassword))

	stronger := New(f.creds, f.engine, f.log,
		WithHasher(hasher(t, bcrypt.MinCost+1)), WithLogger(logging.NewDiscardLogger()))
	require.NoError(t, stronger.Login(ctx, "ivan", strongPassword))

	hash, _, err := f.creds.PasswordHash("ivan")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.guard.Login(ctx, "judy", strongPassword), context.Canceled)
}
