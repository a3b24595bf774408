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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustgate/internal/rest"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

func newLockoutCmd(cfg *Config) *cobra.Command {
	lockoutCmd := &cobra.Command{
		Use:   "lockout",
		Short: "Inspect and clear account lockouts",
	}

	statusCmd := &cobra.Command{
		Use:   "status <username>",
		Short: "Show an account's lockout state",
		Long: `Show failed attempts and lock state for an account. The read has no
side effects: an expired lock is reported as expired-locked until the
next login attempt clears it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if err := validation.ValidatePrincipal(username); err != nil {
				return err
			}

			if cfg.IsRemote() {
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				resp, err := client.Lockout(cmd.Context(), username)
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintLockout(resp)
			}

			components, err := cfg.OpenComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer components.Close()

			resp, err := lockoutStatus(components.Lockout, username)
			if err != nil {
				return err
			}
			return printer(cmd, cfg).PrintLockout(resp)
		},
	}

	unlockCmd := &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear an account's failed attempts and lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if err := validation.ValidatePrincipal(username); err != nil {
				return err
			}

			if cfg.IsRemote() {
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				if err := client.Unlock(cmd.Context(), username); err != nil {
					return err
				}
			} else {
				components, err := cfg.OpenComponents(cmd.Context())
				if err != nil {
					return err
				}
				defer components.Close()

				if err := components.Lockout.Unlock(username); err != nil {
					return fmt.Errorf("failed to unlock %s: %w", username, err)
				}
			}
			return printer(cmd, cfg).PrintSuccess(fmt.Sprintf("Unlocked %s", username))
		},
	}

	lockoutCmd.AddCommand(statusCmd, unlockCmd)
	return lockoutCmd
}

func lockoutStatus(engine *lockout.Engine, username string) (*rest.LockoutResponse, error) {
	state, err := engine.State(username)
	if err != nil {
		return nil, err
	}
	attempts, err := engine.Attempts(username)
	if err != nil {
		return nil, err
	}
	remaining, err := engine.RemainingMinutes(username)
	if err != nil {
		return nil, err
	}
	return &rest.LockoutResponse{
		Username:         username,
		State:            state.String(),
		Locked:           state == lockout.Locked,
		Attempts:         attempts,
		Threshold:        engine.Threshold(),
		RemainingMinutes: remaining,
	}, nil
}
