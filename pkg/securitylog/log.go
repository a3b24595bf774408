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

// Package securitylog is the append-only audit trail of authentication
// events. Entries are single text lines in one file; when an append would
// push the file past its size cap the file is moved to a single ".old"
// backup first. Failed logins recorded here drive the lockout engine.
//
// Write failures are logged and swallowed: audit is best effort and never
// blocks an authentication decision.
package securitylog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
)

const (
	// DefaultFileName is the live log file name.
	DefaultFileName = "security_events.log"

	// BackupSuffix is appended to the live name for the rotated file.
	BackupSuffix = ".old"

	// DefaultMaxSize is the live file size cap in bytes.
	DefaultMaxSize int64 = 1 << 20

	// DefaultLines is how many lines GetSecurityLogs returns when asked for
	// zero or fewer.
	DefaultLines = 100

	// DefaultFailureReason is recorded when LogFailedLogin gets no reason.
	DefaultFailureReason = "Invalid credentials"

	dirPerms  = 0700
	filePerms = 0600
)

// Option configures a Log.
type Option func(*Log)

// WithMaxSize sets the rotation threshold.
func WithMaxSize(n int64) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithDefaultLines sets the GetSecurityLogs default.
func WithDefaultLines(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.defaultLines = n
		}
	}
}

// WithFileName overrides DefaultFileName.
func WithFileName(name string) Option {
	return func(l *Log) {
		if name != "" {
			l.name = filepath.Base(name)
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// Log is a size-bounded security event log.
type Log struct {
	mu           sync.Mutex
	fs           afero.Fs
	dir          string
	name         string
	engine       *lockout.Engine
	maxSize      int64
	defaultLines int
	now          func() time.Time
	logger       *logging.Logger
}

// New returns a log writing below dir on fsys. The directory is created on
// first write. engine may be nil, in which case failed logins are recorded
// but never lock anyone.
func New(fsys afero.Fs, dir string, engine *lockout.Engine, opts ...Option) *Log {
	l := &Log{
		fs:           fsys,
		dir:          filepath.Clean(dir),
		name:         DefaultFileName,
		engine:       engine,
		maxSize:      DefaultMaxSize,
		defaultLines: DefaultLines,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrDefault(l.logger)
	return l
}

// Path returns the live log file path.
func (l *Log) Path() string { return filepath.Join(l.dir, l.name) }

// BackupPath returns the rotated log file path.
func (l *Log) BackupPath() string { return l.Path() + BackupSuffix }

// LogEvent appends one event. A LOGIN_FAILED event for a known user is also
// counted by the lockout engine.
func (l *Log) LogEvent(kind Kind, username, detail string) {
	l.append(kind, username, detail)
	if kind == LoginFailed {
		_, _ = l.trackFailure(username)
	}
}

// LogFailedLogin records a failed login and reports whether the account is
// now locked. A LOGIN_LOCKED event follows when it is. The error is from
// lockout bookkeeping only.
func (l *Log) LogFailedLogin(username, reason string) (locked bool, err error) {
	if reason == "" {
		reason = DefaultFailureReason
	}
	l.append(LoginFailed, username, reason)
	return l.trackFailure(username)
}

// LogSuccessfulLogin clears the user's lockout counters and records the
// login. The event is written even when clearing fails.
func (l *Log) LogSuccessfulLogin(username string) error {
	var err error
	if l.engine != nil && username != "" {
		if err = l.engine.RecordSuccess(username); err != nil {
			l.logger.Warn("clearing lockout counters failed", "error", err.Error())
		}
	}
	l.append(LoginSuccess, username, "")
	return err
}

func (l *Log) trackFailure(username string) (bool, error) {
	if l.engine == nil || username == "" {
		return false, nil
	}
	attempts, locked, err := l.engine.RecordFailure(username)
	if err != nil {
		l.logger.Warn("recording failed login failed", "error", err.Error())
		return false, err
	}
	if locked {
		l.append(LoginLocked, username, fmt.Sprintf("Account locked for %d minutes due to %d failed attempts",
			int(l.engine.Window()/time.Minute), attempts))
	}
	return locked, nil
}

// IsAccountLocked asks the lockout engine about username.
func (l *Log) IsAccountLocked(username string) (bool, error) {
	if l.engine == nil {
		return false, nil
	}
	return l.engine.IsLocked(username)
}

// GetRemainingLockoutTime returns whole minutes left on username's lock.
func (l *Log) GetRemainingLockoutTime(username string) (int, error) {
	if l.engine == nil {
		return 0, nil
	}
	return l.engine.RemainingMinutes(username)
}

// PinReporter returns a pinning.Reporter that records
// CERTIFICATE_PINNING_FAILED events.
func (l *Log) PinReporter() pinning.Reporter {
	return pinning.ReporterFunc(func(err *pinning.MismatchError) {
		l.LogEvent(CertificatePinningFailed, "", "Certificate pin mismatch for host "+err.Host)
	})
}

func (l *Log) append(kind Kind, username, detail string) {
	metrics.RecordSecurityEvent(string(kind))

	entry := Entry{
		Time:     l.now().UTC(),
		Kind:     kind,
		Username: userField(username),
		Detail:   oneLine(detail),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(entry.String() + "\n"); err != nil {
		l.logger.Warn("security event not persisted",
			"kind", string(kind),
			"error", err.Error())
	}
}

func (l *Log) write(line string) error {
	if err := l.fs.MkdirAll(l.dir, dirPerms); err != nil {
		return err
	}
	if err := l.rotate(int64(len(line))); err != nil {
		return fmt.Errorf("rotating: %w", err)
	}

	f, err := l.fs.OpenFile(l.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// rotate moves a non-empty live file over the backup when pending more
// bytes would exceed the cap.
func (l *Log) rotate(pending int64) error {
	info, err := l.fs.Stat(l.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 || info.Size()+pending <= l.maxSize {
		return nil
	}
	if err := removeIfExists(l.fs, l.BackupPath()); err != nil {
		return err
	}
	if err := l.fs.Rename(l.Path(), l.BackupPath()); err != nil {
		return err
	}
	l.logger.Debug("security log rotated", "backup", l.BackupPath())
	return nil
}

// GetSecurityLogs returns the last maxLines lines of the live log, oldest
// first. maxLines <= 0 selects the configured default.
func (l *Log) GetSecurityLogs(maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = l.defaultLines
	}

	l.mu.Lock()
	data, err := afero.ReadFile(l.fs, l.Path())
	l.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("securitylog: reading %s: %w", l.Path(), err)
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return []string{}, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// Entries is GetSecurityLogs parsed into entries. Lines that do not parse
// are skipped.
func (l *Log) Entries(maxLines int) ([]Entry, error) {
	lines, err := l.GetSecurityLogs(maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		e, err := ParseEntry(line)
		if err != nil {
			l.logger.Debug("skipping unparseable security log line", "error", err.Error())
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ClearLogs deletes the live log and its backup.
func (l *Log) ClearLogs() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := removeIfExists(l.fs, l.Path()); err != nil {
		return fmt.Errorf("securitylog: clearing: %w", err)
	}
	if err := removeIfExists(l.fs, l.BackupPath()); err != nil {
		return fmt.Errorf("securitylog: clearing backup: %w", err)
	}
	l.logger.Info("security log cleared")
	return nil
}

func removeIfExists(fsys afero.Fs, path string) error {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
