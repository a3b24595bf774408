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

package password

import (
	"unicode"
	"unicode/utf16"
)

// Level buckets a strength score.
type Level int

const (
	Weak Level = iota
	Fair
	Good
	Strong
)

// String returns the display label.
func (l Level) String() string {
	switch l {
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Weak"
	}
}

// Percent maps the level onto a 0-100 progress value.
func (l Level) Percent() int {
	return (int(l) + 1) * 25
}

// Score is the result of Strength.
type Score struct {
	Value int   `json:"value"`
	Level Level `json:"level"`
}

// Strength scores password out of 100: up to 40 points for length and 15
// each for an uppercase letter, a lowercase letter, a digit and any other
// character.
func Strength(password string) Score {
	if password == "" {
		return Score{Value: 0, Level: Weak}
	}

	var value int
	switch n := codeUnits(password); {
	case n >= 12:
		value = 40
	case n >= 8:
		value = 30
	case n >= 6:
		value = 20
	default:
		value = 10
	}

	c := classify(password)
	for _, has := range []bool{c.upper, c.lower, c.digit, c.other} {
		if has {
			value += 15
		}
	}

	level := Weak
	switch {
	case value >= 85:
		level = Strong
	case value >= 60:
		level = Good
	case value >= 40:
		level = Fair
	}
	return Score{Value: value, Level: level}
}

// UnmetRequirements lists the minimum policy rules password fails, in display order.
func UnmetRequirements(password string) []string {
	c := classify(password)
	var unmet []string
	if codeUnits(password) < 8 {
		unmet = append(unmet, "At least 8 characters")
	}
	if !c.upper {
		unmet = append(unmet, "One uppercase letter")
	}
	if !c.lower {
		unmet = append(unmet, "One lowercase letter")
	}
	if !c.digit {
		unmet = append(unmet, "One number")
	}
	return unmet
}

type classes struct {
	upper, lower, digit, other bool
}

func classify(s string) classes {
	var c classes
	for _, r := range s {
		if unicode.IsUpper(r) {
			c.upper = true
		}
		if unicode.IsLower(r) {
			c.lower = true
		}
		if unicode.IsDigit(r) {
			c.digit = true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			c.other = true
		}
	}
	return c
}

func codeUnits(s string) int {
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
