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

// Package validation sanitizes and validates untrusted input before it
// reaches the secret store, the password hasher or a log sink.
//
// Every function here is total: invalid input produces false, an empty
// result or a descriptive error, never a panic.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
)

// MaxSanitizedLength is the cap applied by SanitizeString, in UTF-16 code units.
const MaxSanitizedLength = 255

// MaxEmailLength is the RFC 5321 limit on a forward path.
const MaxEmailLength = 254

// MaxStoreKeyLength bounds secret store keys in bytes.
const MaxStoreKeyLength = 255

// MaxPrincipalLength bounds principals in bytes. A principal is stored
// base64url encoded under a namespace of up to 64 bytes, and the result must
// stay within MaxStoreKeyLength: 64 + 1 + 4*96/3 = 193.
const MaxPrincipalLength = 96

var (
	// injectionChars are removed by SanitizeString.
	injectionChars = regexp.MustCompile("[<>\"'`]")

	whitespaceRun = regexp.MustCompile(`[\t\n\v\f\r ]+`)

	nonDigits = regexp.MustCompile(`[^0-9]`)

	phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	bookingIDPattern = regexp.MustCompile(`^BK[0-9]{10,}$`)

	// emailPattern is the same grammar mobile platforms ship for address fields:
	// a local part, "@", then at least two dot separated labels.
	emailPattern = regexp.MustCompile(
		`^[a-zA-Z0-9+._%\-]{1,256}` +
			`@` +
			`[a-zA-Z0-9][a-zA-Z0-9\-]{0,64}` +
			`(\.[a-zA-Z0-9][a-zA-Z0-9\-]{0,25})+$`)
)

// SanitizeString trims s, removes the characters < > " ' and backtick,
// collapses whitespace runs to one space and truncates the result to
// MaxSanitizedLength UTF-16 code units. The result is a fixed point:
// SanitizeString(SanitizeString(s)) == SanitizeString(s).
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = injectionChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = truncateUTF16(s, MaxSanitizedLength)
	// Truncation can expose trailing whitespace.
	return strings.TrimSpace(s)
}

// truncateUTF16 cuts s to at most n UTF-16 code units without splitting a
// surrogate pair.
func truncateUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if units+w > n {
			return s[:i]
		}
		units += w
	}
	return s
}

// utf16Len counts UTF-16 code units in s.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}

// IsValidEmail reports whether s is a non-blank, well formed address of at
// most MaxEmailLength characters.
func IsValidEmail(s string) bool {
	if strings.TrimSpace(s) == "" || utf16Len(s) > MaxEmailLength {
		return false
	}
	return emailPattern.MatchString(s)
}

// IsValidPhoneNumber strips every non-digit and requires exactly ten digits.
func IsValidPhoneNumber(s string) bool {
	return phonePattern.MatchString(nonDigits.ReplaceAllString(s, ""))
}

// IsStrongPassword requires at least eight characters with an uppercase
// letter, a lowercase letter and a digit.
func IsStrongPassword(s string) bool {
	if utf16Len(s) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// IsValidUsername accepts 3 to 20 ASCII letters, digits or underscores.
func IsValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// SanitizeBookingID trims and upper-cases s and accepts it only as "BK"
// followed by ten or more digits.
func SanitizeBookingID(s string) (string, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(s))
	if !bookingIDPattern.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// ValidatePrincipal validates an identifier used to derive per-principal
// storage keys. Any printable text is allowed; key encoding takes care of
// separators.
func ValidatePrincipal(principal string) error {
	if principal == "" {
		return fmt.Errorf("principal cannot be empty")
	}
	if len(principal) > MaxPrincipalLength {
		return fmt.Errorf("principal too long (max %d bytes)", MaxPrincipalLength)
	}
	if hasControl(principal) {
		return fmt.Errorf("principal contains control characters")
	}
	return nil
}

// ValidateStoreKey validates a secret store key.
// Prevents ambiguous or unloggable keys by:
// - Rejecting empty strings
// - Rejecting null bytes and other control characters
// - Enforcing length limits
func ValidateStoreKey(key string) error {
	if key == "" {
		return fmt.Errorf("store key cannot be empty")
	}

	// Check length before anything else
	if len(key) > MaxStoreKeyLength {
		return fmt.Errorf("store key too long (max %d bytes)", MaxStoreKeyLength)
	}

	if strings.Contains(key, "\x00") {
		return fmt.Errorf("store key contains null byte")
	}

	if hasControl(key) {
		return fmt.Errorf("store key contains control characters")
	}

	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}
