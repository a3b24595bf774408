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
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustgate/pkg/password"
)

// secretArg returns args[i], or one line read from stdin when the argument
// is absent or "-". Reading from stdin keeps passwords out of shell history.
func secretArg(cmd *cobra.Command, args []string, i int) (string, error) {
	if i < len(args) && args[i] != "-" {
		return args[i], nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newPasswordCmd(cfg *Config) *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Hash, verify and score passwords",
	}

	var cost int
	hashCmd := &cobra.Command{
		Use:   "hash [password|-]",
		Short: "Print a bcrypt hash of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := password.New(cost)
			if err != nil {
				return err
			}
			pw, err := secretArg(cmd, args, 0)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}
			return printer(cmd, cfg).PrintValue("hash", hash)
		},
	}
	hashCmd.Flags().IntVar(&cost, "cost", password.DefaultCost, "bcrypt cost")

	verifyCmd := &cobra.Command{
		Use:   "verify <hash> [password|-]",
		Short: "Check a password against a stored hash",
		Long: `Check a password against a bcrypt or legacy argon2id hash. Exits
non-zero when the password does not match.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := secretArg(cmd, args, 1)
			if err != nil {
				return err
			}
			ok := password.Default().Verify(pw, args[0])
			if err := printer(cmd, cfg).PrintCheck("match", "", ok); err != nil {
				return err
			}
			if !ok {
				return ErrCheckFailed
			}
			return nil
		},
	}

	strengthCmd := &cobra.Command{
		Use:   "strength [password|-]",
		Short: "Score a password and list unmet requirements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := secretArg(cmd, args, 0)
			if err != nil {
				return err
			}
			return printer(cmd, cfg).PrintStrength(password.Strength(pw), password.UnmetRequirements(pw))
		},
	}

	passwordCmd.AddCommand(hashCmd, verifyCmd, strengthCmd)
	return passwordCmd
}
