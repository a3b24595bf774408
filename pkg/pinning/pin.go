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

// Package pinning builds TLS configurations and HTTP clients that only trust
// a server whose certificate chain carries a known SHA-256 subject public key
// pin.
package pinning

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix starts every pin string.
const Prefix = "sha256/"

var (
	// ErrInvalidPin is returned for malformed pin strings.
	ErrInvalidPin = errors.New("pinning: invalid pin")

	// ErrNoPins is returned when a pin set is empty.
	ErrNoPins = errors.New("pinning: no pins")

	// ErrInvalidHost is returned for an empty or malformed host.
	ErrInvalidHost = errors.New("pinning: invalid host")

	// ErrPinMismatch is matched by every *MismatchError.
	ErrPinMismatch = errors.New("pinning: certificate pin mismatch")

	// ErrHostNotPinned is returned by a pinned client asked to reach another host.
	ErrHostNotPinned = errors.New("pinning: host not pinned")

	// ErrUnpinnedDisabled is returned by NewUnpinnedClient in release builds.
	ErrUnpinnedDisabled = errors.New("pinning: unpinned client is not compiled into this build")
)

// Pin is a base64 SHA-256 digest of a DER SubjectPublicKeyInfo, written as
// "sha256/<base64>".
type Pin string

// ParsePin validates s and returns it as a Pin.
func ParsePin(s string) (Pin, error) {
	p := Pin(strings.TrimSpace(s))
	if _, err := p.Digest(); err != nil {
		return "", err
	}
	return p, nil
}

// MustParsePin is ParsePin for constants.
func MustParsePin(s string) Pin {
	p, err := ParsePin(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Digest returns the raw 32-byte digest.
func (p Pin) Digest() ([]byte, error) {
	s := string(p)
	if !strings.HasPrefix(s, Prefix) {
		return nil, fmt.Errorf("%w: %q lacks %q prefix", ErrInvalidPin, s, Prefix)
	}
	digest, err := base64.StdEncoding.DecodeString(s[len(Prefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPin, s, err)
	}
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("%w: %q: digest is %d bytes", ErrInvalidPin, s, len(digest))
	}
	return digest, nil
}

func (p Pin) String() string { return string(p) }

func pinOf(spki []byte) Pin {
	sum := sha256.Sum256(spki)
	return Pin(Prefix + base64.StdEncoding.EncodeToString(sum[:]))
}

// PinFromCertificate returns the pin of the certificate's public key.
func PinFromCertificate(cert *x509.Certificate) Pin {
	return pinOf(cert.RawSubjectPublicKeyInfo)
}

// PinFromPublicKey returns the pin of a public key.
func PinFromPublicKey(pub crypto.PublicKey) (Pin, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("pinning: marshaling public key: %w", err)
	}
	return pinOf(der), nil
}

// MismatchError reports a handshake whose chain matched no pin.
type MismatchError struct {
	Host      string
	Presented []Pin
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("pinning: certificate pin mismatch for %s (presented %d keys)",
		e.Host, len(e.Presented))
}

// Unwrap returns ErrPinMismatch.
func (e *MismatchError) Unwrap() error { return ErrPinMismatch }

// Reporter is told about every pin mismatch.
type Reporter interface {
	ReportPinFailure(err *MismatchError)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err *MismatchError)

// ReportPinFailure calls f(err).
func (f ReporterFunc) ReportPinFailure(err *MismatchError) { f(err) }
