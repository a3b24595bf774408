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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

func newValidateCmd(cfg *Config) *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run input through the validation and sanitization rules",
		Long: `Each check prints true or false and exits non-zero when the input is
rejected. booking and sanitize print the normalized value instead.`,
	}

	checks := []struct {
		use   string
		short string
		fn    func(string) bool
	}{
		{"email <address>", "Check an email address", validation.IsValidEmail},
		{"phone <number>", "Check for a ten digit phone number", validation.IsValidPhoneNumber},
		{"username <name>", "Check a username (3-20 letters, digits or underscores)", validation.IsValidUsername},
		{"password <password>", "Check the minimum password policy", validation.IsStrongPassword},
	}
	for _, c := range checks {
		fn := c.fn
		validateCmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ok := fn(args[0])
				if err := printer(cmd, cfg).PrintCheck("valid", args[0], ok); err != nil {
					return err
				}
				if !ok {
					return ErrCheckFailed
				}
				return nil
			},
		})
	}

	validateCmd.AddCommand(&cobra.Command{
		Use:   "booking <id>",
		Short: "Normalize a booking reference (BK followed by ten or more digits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := validation.SanitizeBookingID(args[0])
			if !ok {
				if err := printer(cmd, cfg).PrintCheck("valid", args[0], false); err != nil {
					return err
				}
				return ErrCheckFailed
			}
			return printer(cmd, cfg).PrintValue("booking_id", id)
		},
	})

	validateCmd.AddCommand(&cobra.Command{
		Use:   "sanitize <text>",
		Short: "Strip markup characters, collapse whitespace and truncate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printer(cmd, cfg).PrintValue("sanitized", validation.SanitizeString(args[0]))
		},
	})

	return validateCmd
}
