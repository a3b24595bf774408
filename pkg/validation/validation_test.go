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

package validation

import (
	"strings"
	"testing"
	"unicode/utf16"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean string", "hello world", "hello world"},
		{"trims", "  padded \t", "padded"},
		{"strips markup", `<script>alert("x")</script>`, "scriptalert(x)/script"},
		{"strips quotes and backtick", "it's `rm` \"now\"", "its rm now"},
		{"collapses whitespace", "a \t\n  b\r\nc", "a b c"},
		{"empty", "", ""},
		{"only denied chars", `<>"'`+"`", ""},
		{"truncates", strings.Repeat("x", 300), strings.Repeat("x", 255)},
		{"truncation exposes trailing space", strings.Repeat("x", 254) + " tail", strings.Repeat("x", 254)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.input); got != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeString_Properties(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"  <b>bold</b>  ",
		strings.Repeat("ab ", 200),
		strings.Repeat("\U0001F600", 200), // surrogate pairs
		strings.Repeat("x", 254) + "\U0001F600",
		"tab\tand\nnewline   runs",
		strings.Repeat("'\"", 100) + "end",
	}

	for _, in := range inputs {
		once := SanitizeString(in)
		if strings.ContainsAny(once, "<>\"'`") {
			t.Errorf("SanitizeString(%q) = %q still contains denied characters", in, once)
		}
		if n := len(utf16.Encode([]rune(once))); n > MaxSanitizedLength {
			t.Errorf("SanitizeString(%q) has %d code units, want <= %d", in, n, MaxSanitizedLength)
		}
		if twice := SanitizeString(once); twice != once {
			t.Errorf("SanitizeString not idempotent: %q -> %q", once, twice)
		}
	}
}

func TestSanitizeString_SurrogatePairNotSplit(t *testing.T) {
	in := strings.Repeat("x", 254) + "\U0001F600"
	if got := SanitizeString(in); got != strings.Repeat("x", 254) {
		t.Errorf("SanitizeString split a surrogate pair: %q", got)
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"user@example.com", true},
		{"first.last+tag@mail.example.co.uk", true},
		{"a_b%c-d@host-1.io", true},
		{"", false},
		{"   ", false},
		{"no-at-sign.example.com", false},
		{"user@localhost", false},
		{"user@@example.com", false},
		{"user@-example.com", false},
		{"us er@example.com", false},
		{strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.input); got != tt.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsValidPhoneNumber(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"9876543210", true},
		{"(987) 654-3210", true},
		{"987.654.3210", true},
		{"123", false},
		{"98765432101", false},
		{"", false},
		{"phone", false},
	}

	for _, tt := range tests {
		if got := IsValidPhoneNumber(tt.input); got != tt.want {
			t.Errorf("IsValidPhoneNumber(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Abcdefg1", true},
		{"Passw0rdWithLength", true},
		{"abcdefgh", false},
		{"ABCDEFG1", false},
		{"Abcdefgh", false},
		{"Abc1", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsStrongPassword(tt.input); got != tt.want {
			t.Errorf("IsStrongPassword(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"alice", true},
		{"bob_42", true},
		{"abc", true},
		{strings.Repeat("a", 20), true},
		{"ab", false},
		{strings.Repeat("a", 21), false},
		{"alice smith", false},
		{"alice-smith", false},
		{"alice/../admin", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidUsername(tt.input); got != tt.want {
			t.Errorf("IsValidUsername(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeBookingID(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"bk0000000001", "BK0000000001", true},
		{"  BK12345678901234 ", "BK12345678901234", true},
		{"BK1", "", false},
		{"XX0000000001", "", false},
		{"BK000000000A", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := SanitizeBookingID(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("SanitizeBookingID(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValidatePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"with delimiter", "alice_failed_attempts", false},
		{"with slash", "a/b", false},
		{"unicode", "zoë", false},
		{"empty", "", true},
		{"newline", "alice\nbob", true},
		{"null byte", "alice\x00", true},
		{"at limit", strings.Repeat("a", MaxPrincipalLength), false},
		{"multibyte at limit", strings.Repeat("é", MaxPrincipalLength/2), false},
		{"over limit", strings.Repeat("a", MaxPrincipalLength+1), true},
		{"too long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrincipal(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePrincipal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateStoreKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "biometric_enabled", false},
		{"namespaced", "lockout/failed_attempts/YWxpY2U", false},
		{"spaces allowed", "display name", false},
		{"empty", "", true},
		{"null byte", "key\x00name", true},
		{"control character", "key\nname", true},
		{"del character", "key\x7f", true},
		{"too long", strings.Repeat("k", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStoreKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStoreKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean string", "hello world", "hello world"},
		{"with newline", "hello\nworld", "helloworld"},
		{"with tab", "hello\tworld", "helloworld"},
		{"with null byte", "hello\x00world", "helloworld"},
		{"with del character", "hello\x7fworld", "helloworld"},
		{"forged log line", "alice\n[2025-01-01T00:00:00.000Z] LOGIN_SUCCESS | User: admin", "alice[2025-01-01T00:00:00.000Z] LOGIN_SUCCESS | User: admin"},
		{"very long string", strings.Repeat("a", 1500), strings.Repeat("a", 1000) + "...[truncated]"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeForLog(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func BenchmarkSanitizeString(b *testing.B) {
	input := "  <b>Vehicle</b> booking   for 'alice'  "
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SanitizeString(input)
	}
}

func BenchmarkIsValidEmail(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsValidEmail("first.last@example.com")
	}
}
