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
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the type of a security event.
type Kind string

const (
	LoginSuccess             Kind = "LOGIN_SUCCESS"
	LoginFailed              Kind = "LOGIN_FAILED"
	LoginLocked              Kind = "LOGIN_LOCKED"
	Logout                   Kind = "LOGOUT"
	PasswordChanged          Kind = "PASSWORD_CHANGED"
	BiometricEnabled         Kind = "BIOMETRIC_ENABLED"
	BiometricDisabled        Kind = "BIOMETRIC_DISABLED"
	BiometricFailed          Kind = "BIOMETRIC_FAILED"
	AccountCreated           Kind = "ACCOUNT_CREATED"
	AccountDeleted           Kind = "ACCOUNT_DELETED"
	SuspiciousActivity       Kind = "SUSPICIOUS_ACTIVITY"
	CertificatePinningFailed Kind = "CERTIFICATE_PINNING_FAILED"
	UnauthorizedAccess       Kind = "UNAUTHORIZED_ACCESS"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	LoginSuccess, LoginFailed, LoginLocked, Logout, PasswordChanged,
	BiometricEnabled, BiometricDisabled, BiometricFailed,
	AccountCreated, AccountDeleted, SuspiciousActivity,
	CertificatePinningFailed, UnauthorizedAccess,
}

// ErrInvalidKind is returned for an unknown event kind.
var ErrInvalidKind = errors.New("securitylog: invalid event kind")

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// TimestampFormat is the ISO-8601 layout of the bracketed timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// unknownUser stands in for an absent principal.
const unknownUser = "UNKNOWN"

// Entry is one parsed log line.
type Entry struct {
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	Username string    `json:"username,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// String formats the entry as a log line without the trailing newline:
//
//	[2025-01-02T03:04:05.000Z] LOGIN_FAILED | User: alice | Invalid credentials
func (e Entry) String() string {
	user := e.Username
	if user == "" {
		user = unknownUser
	}
	return fmt.Sprintf("[%s] %s | User: %s | %s",
		e.Time.Format(TimestampFormat), e.Kind, user, e.Detail)
}

var linePattern = regexp.MustCompile(`^\[([^\]]+)\] ([A-Z_]+) \| User: (.*?) \| (.*)$`)

// ParseEntry parses a line written by Entry.String.
func ParseEntry(line string) (Entry, error) {
	m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Entry{}, fmt.Errorf("securitylog: malformed line %q", line)
	}
	ts, err := time.Parse(TimestampFormat, m[1])
	if err != nil {
		return Entry{}, fmt.Errorf("securitylog: malformed timestamp %q: %w", m[1], err)
	}
	kind, err := ParseKind(m[2])
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Time: ts, Kind: kind, Username: m[3], Detail: m[4]}
	if e.Username == unknownUser {
		e.Username = ""
	}
	return e, nil
}

// oneLine replaces control characters so an entry never spans lines.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return ' '
		}
		return r
	}, s)
}

// userField also removes the field separator so parsing stays unambiguous.
func userField(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", "/")
}
