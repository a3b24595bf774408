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

import "fmt"

// Status is the host biometric subsystem's readiness.
type Status int

const (
	Unknown Status = iota
	Available
	NoHardware
	HardwareUnavailable
	NoneEnrolled
	SecurityUpdateRequired
	Unsupported
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case NoHardware:
		return "no-hardware"
	case HardwareUnavailable:
		return "hardware-unavailable"
	case NoneEnrolled:
		return "none-enrolled"
	case SecurityUpdateRequired:
		return "security-update-required"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Message returns the user-facing description of s.
func (s Status) Message() string {
	switch s {
	case Available:
		return "Biometric authentication is available"
	case NoHardware:
		return "This device doesn't have biometric hardware"
	case HardwareUnavailable:
		return "Biometric hardware is currently unavailable"
	case NoneEnrolled:
		return "No biometric credentials enrolled. Please set up fingerprint or face unlock in device settings"
	case SecurityUpdateRequired:
		return "Security update required for biometric authentication"
	case Unsupported:
		return "Biometric authentication is not supported"
	default:
		return "Biometric status unknown"
	}
}

// Outcome classifies one Result.
type Outcome int

const (
	// Success means the user was verified. Terminal.
	Success Outcome = iota
	// Error means the prompt ended without verification. Terminal.
	Error
	// Failed means one sample did not match; the prompt stays open.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Error:
		return "error"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Terminal reports whether o ends a prompt.
func (o Outcome) Terminal() bool { return o == Success || o == Error }

// ErrorCode identifies why a prompt ended in Error. Values follow the
// common mobile platform numbering so host adapters can pass codes through.
type ErrorCode int

const (
	ErrorNone                ErrorCode = 0
	ErrorHardwareUnavailable ErrorCode = 1
	ErrorUnableToProcess     ErrorCode = 2
	ErrorTimeout             ErrorCode = 3
	ErrorNoSpace             ErrorCode = 4
	ErrorCanceled            ErrorCode = 5
	ErrorLockout             ErrorCode = 7
	ErrorVendor              ErrorCode = 8
	ErrorLockoutPermanent    ErrorCode = 9
	ErrorUserCanceled        ErrorCode = 10
	ErrorNoBiometrics        ErrorCode = 11
	ErrorHardwareNotPresent  ErrorCode = 12
	ErrorNegativeButton      ErrorCode = 13
	ErrorNoDeviceCredential  ErrorCode = 14
)

// Canceled reports whether the code means the user or caller dismissed the prompt.
func (c ErrorCode) Canceled() bool {
	return c == ErrorCanceled || c == ErrorUserCanceled || c == ErrorNegativeButton
}

// Result is one event from a prompt.
type Result struct {
	Outcome Outcome
	Code    ErrorCode
	Message string
}

// Prompt is the text shown by the host prompt.
type Prompt struct {
	Title       string
	Subtitle    string
	Description string
}

// DefaultPrompt is used when Authenticate gets an empty prompt.
func DefaultPrompt() Prompt {
	return Prompt{
		Title:       "Biometric Authentication",
		Subtitle:    "Verify your identity",
		Description: "Use your fingerprint or face to authenticate",
	}
}

// QuickLoginPrompt is the prompt shown by QuickLogin.
func QuickLoginPrompt() Prompt {
	return Prompt{
		Title:       "Quick Login",
		Subtitle:    "Login with biometrics",
		Description: "Use your fingerprint or face to login",
	}
}
