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

package pinning

import (
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
)

// Environment names a pin set.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

const (
	productionHost  = "your-api-server.com"
	developmentHost = "staging-api-server.com"

	productionPrimaryPin = "sha256/AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	productionBackupPin  = "sha256/BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB="
	developmentPin       = "sha256/CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC="
)

// PinSet is the list of acceptable pins for one host. Any single match is
// enough, so a backup pin lets the server rotate keys without an outage.
type PinSet struct {
	Host string `yaml:"host" json:"host"`
	Pins []Pin  `yaml:"pins" json:"pins"`
}

// NewPinSet parses pins for host.
func NewPinSet(host string, pins ...string) (PinSet, error) {
	set := PinSet{Host: host}
	for _, s := range pins {
		p, err := ParsePin(s)
		if err != nil {
			return PinSet{}, err
		}
		set.Pins = append(set.Pins, p)
	}
	return set, set.Validate()
}

// Validate checks the host and every pin.
func (s PinSet) Validate() error {
	if err := validateHost(s.Host); err != nil {
		return err
	}
	if len(s.Pins) == 0 {
		return fmt.Errorf("%w for %s", ErrNoPins, s.Host)
	}
	for _, p := range s.Pins {
		if _, err := p.Digest(); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether p is one of the set's pins.
func (s PinSet) Contains(p Pin) bool {
	for _, want := range s.Pins {
		if subtle.ConstantTimeCompare([]byte(want), []byte(p)) == 1 {
			return true
		}
	}
	return false
}

// Match returns the first certificate in chain with a pinned key. The second
// result lists every presented pin, for reporting.
func (s PinSet) Match(chain []*x509.Certificate) (matched bool, presented []Pin) {
	for _, cert := range chain {
		p := PinFromCertificate(cert)
		presented = append(presented, p)
		if s.Contains(p) {
			matched = true
		}
	}
	return matched, presented
}

// ProductionPins returns the release pin set: a primary and a backup key.
func ProductionPins() PinSet {
	return PinSet{
		Host: productionHost,
		Pins: []Pin{productionPrimaryPin, productionBackupPin},
	}
}

// DevelopmentPins returns the staging pin set.
func DevelopmentPins() PinSet {
	return PinSet{
		Host: developmentHost,
		Pins: []Pin{developmentPin},
	}
}

// ForEnvironment returns the built-in pin set for env.
func ForEnvironment(env Environment) (PinSet, error) {
	switch env {
	case Production, "":
		return ProductionPins(), nil
	case Development:
		return DevelopmentPins(), nil
	default:
		return PinSet{}, fmt.Errorf("pinning: unknown environment %q", env)
	}
}

func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if strings.ContainsAny(host, "/:@ ") && net.ParseIP(host) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}
