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

package securitylog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/storage/memory"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

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

func newEngine(t *testing.T, c *clock) *lockout.Engine {
	t.Helper()
	p, err := keyprovider.NewStatic(bytes.Repeat([]byte{3}, keyprovider.KeySize))
	require.NoError(t, err)
	store := secretstore.New(memory.New(), p, secretstore.WithLogger(logging.NewDiscardLogger()))
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return lockout.New(store, lockout.WithClock(c.Now), lockout.WithLogger(logging.NewDiscardLogger()))
}

func newLog(t *testing.T, opts ...Option) (*Log, afero.Fs, *clock) {
	t.Helper()
	c := &clock{now: epoch}
	fs := afero.NewMemMapFs()
	opts = append([]Option{WithClock(c.Now), WithLogger(logging.NewDiscardLogger())}, opts...)
	return New(fs, "/var/lib/trustgate", newEngine(t, c), opts...), fs, c
}

func TestLineFormat(t *testing.T) {
	l, fs, _ := newLog(t)

	l.LogEvent(Logout, "alice", "")
	l.LogEvent(SuspiciousActivity, "", "burst of requests")

	data, err := afero.ReadFile(fs, "/var/lib/trustgate/security_events.log")
	require.NoError(t, err)
	assert.Equal(t,
		"[2025-06-01T12:00:00.000Z] LOGOUT | User: alice | \n"+
			"[2025-06-01T12:00:00.000Z] SUSPICIOUS_ACTIVITY | User: UNKNOWN | burst of requests\n",
		string(data))
}

func TestLineInjectionIsNeutralized(t *testing.T) {
	l, _, _ := newLog(t)

	l.LogEvent(AccountCreated, "eve\n[2025-01-01T00:00:00.000Z] LOGIN_SUCCESS | User: admin", "a\r\nb")

	lines, err := l.GetSecurityLogs(0)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	e, err := ParseEntry(lines[0])
	require.NoError(t, err)
	assert.Equal(t, AccountCreated, e.Kind)
	assert.NotContains(t, e.Username, "|")
	assert.Equal(t, "a  b", e.Detail)
}

func TestFailedLoginsLockAccount(t *testing.T) {
	l, _, c := newLog(t)

	for i := 0; i < 4; i++ {
		locked, err := l.LogFailedLogin("bob", "")
		require.NoError(t, err)
		assert.False(t, locked)
	}
	locked, err := l.IsAccountLocked("bob")
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = l.LogFailedLogin("bob", "wrong password")
	require.NoError(t, err)
	assert.True(t, locked)

	c.Advance(time.Minute)
	mins, err := l.GetRemainingLockoutTime("bob")
	require.NoError(t, err)
	assert.Equal(t, 14, mins)

	entries, err := l.Entries(0)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, DefaultFailureReason, entries[0].Detail)
	assert.Equal(t, "wrong password", entries[4].Detail)
	assert.Equal(t, LoginLocked, entries[5].Kind)
	assert.Equal(t, "Account locked for 15 minutes due to 5 failed attempts", entries[5].Detail)

	require.NoError(t, l.LogSuccessfulLogin("bob"))
	locked, err = l.IsAccountLocked("bob")
	require.NoError(t, err)
	assert.False(t, locked)

	entries, err = l.Entries(1)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, entries[0].Kind)
}

func TestLogEventLoginFailedFeedsLockout(t *testing.T) {
	l, _, _ := newLog(t)

	for i := 0; i < lockout.DefaultThreshold; i++ {
		l.LogEvent(LoginFailed, "carol", "")
	}
	locked, err := l.IsAccountLocked("carol")
	require.NoError(t, err)
	assert.True(t, locked)

	// Unknown principals are recorded but not counted.
	l.LogEvent(LoginFailed, "", "")
	entries, err := l.Entries(1)
	require.NoError(t, err)
	assert.Equal(t, "", entries[0].Username)
}

func TestGetSecurityLogsTail(t *testing.T) {
	l, _, _ := newLog(t)

	lines, err := l.GetSecurityLogs(10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	for i := 0; i < 150; i++ {
		l.LogEvent(PasswordChanged, "dave", fmt.Sprintf("change %d", i))
	}

	lines, err = l.GetSecurityLogs(0)
	require.NoError(t, err)
	require.Len(t, lines, DefaultLines)
	assert.True(t, strings.HasSuffix(lines[0], "change 50"))
	assert.True(t, strings.HasSuffix(lines[99], "change 149"))

	lines, err = l.GetSecurityLogs(3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], "change 149"))

	lines, err = l.GetSecurityLogs(1000)
	require.NoError(t, err)
	assert.Len(t, lines, 150)
}

func TestRotationKeepsOneBackup(t *testing.T) {
	const maxSize = 300
	l, fs, _ := newLog(t, WithMaxSize(maxSize))

	for i := 0; i < 40; i++ {
		l.LogEvent(Logout, "frank", fmt.Sprintf("session %02d", i))

		info, err := fs.Stat(l.Path())
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(maxSize))
	}

	backup, err := afero.ReadFile(fs, l.BackupPath())
	require.NoError(t, err)
	assert.NotEmpty(t, backup)
	assert.NotContains(t, string(backup), "session 00", "older generations are overwritten")

	live, err := afero.ReadFile(fs, l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(live), "session 39")

	// Together the two files hold a contiguous run ending at the newest entry.
	all := strings.Split(strings.TrimSpace(string(backup)+string(live)), "\n")
	for i := 1; i < len(all); i++ {
		prev, err := ParseEntry(all[i-1])
		require.NoError(t, err)
		cur, err := ParseEntry(all[i])
		require.NoError(t, err)
		var a, b int
		_, _ = fmt.Sscanf(prev.Detail, "session %d", &a)
		_, _ = fmt.Sscanf(cur.Detail, "session %d", &b)
		assert.Equal(t, a+1, b)
	}
}

func TestClearLogs(t *testing.T) {
	l, fs, _ := newLog(t, WithMaxSize(120))
	for i := 0; i < 5; i++ {
		l.LogEvent(Logout, "gina", "")
	}
	exists, err := afero.Exists(fs, l.BackupPath())
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, l.ClearLogs())
	for _, p := range []string{l.Path(), l.BackupPath()} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}

	lines, err := l.GetSecurityLogs(0)
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Clearing an empty log is fine.
	assert.NoError(t, l.ClearLogs())
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	c := &clock{now: epoch}
	ro := afero.NewReadOnlyFs(afero.NewMemMapFs())
	l := New(ro, "/logs", newEngine(t, c), WithClock(c.Now), WithLogger(logging.NewDiscardLogger()))

	var locked bool
	var err error
	for i := 0; i < lockout.DefaultThreshold; i++ {
		locked, err = l.LogFailedLogin("henry", "")
		require.NoError(t, err)
	}
	assert.True(t, locked, "lockout works without a writable audit file")

	lines, err := l.GetSecurityLogs(0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestNilEngine(t *testing.T) {
	l := New(afero.NewMemMapFs(), "/logs", nil, WithLogger(logging.NewDiscardLogger()))

	locked, err := l.LogFailedLogin("ivan", "")
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = l.IsAccountLocked("ivan")
	require.NoError(t, err)
	assert.False(t, locked)

	mins, err := l.GetRemainingLockoutTime("ivan")
	require.NoError(t, err)
	assert.Zero(t, mins)
	assert.NoError(t, l.LogSuccessfulLogin("ivan"))
}

func TestPinReporter(t *testing.T) {
	l, _, _ := newLog(t)

	l.PinReporter().ReportPinFailure(&pinning.MismatchError{Host: "your-api-server.com"})

	entries, err := l.Entries(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CertificatePinningFailed, entries[0].Kind)
	assert.Contains(t, entries[0].Detail, "your-api-server.com")
}

func TestParseEntry(t *testing.T) {
	e := Entry{Time: epoch, Kind: BiometricFailed, Username: "judy", Detail: "x | y"}
	got, err := ParseEntry(e.String())
	require.NoError(t, err)
	assert.Equal(t, e.Kind, got.Kind)
	assert.Equal(t, e.Username, got.Username)
	assert.Equal(t, e.Detail, got.Detail)
	assert.True(t, e.Time.Equal(got.Time))

	for _, bad := range []string{
		"",
		"garbage",
		"[not-a-time] LOGOUT | User: a | ",
		"[2025-06-01T12:00:00.000Z] NOT_A_KIND | User: a | ",
	} {
		_, err := ParseEntry(bad)
		assert.Error(t, err, bad)
	}
}

func TestKinds(t *testing.T) {
	assert.Len(t, Kinds, 13)
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("login_success")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestCustomFileNameAndDefaultLines(t *testing.T) {
	l, fs, _ := newLog(t, WithFileName("audit.log"), WithDefaultLines(2))
	for i := 0; i < 4; i++ {
		l.LogEvent(Logout, "kim", "")
	}
	exists, err := afero.Exists(fs, "/var/lib/trustgate/audit.log")
	require.NoError(t, err)
	assert.True(t, exists)

	lines, err := l.GetSecurityLogs(0)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}
