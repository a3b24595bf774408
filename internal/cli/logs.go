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

	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
)

func newLogsCmd(cfg *Config) *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Read and clear the security event log",
	}

	var lines int
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent security events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative")
			}

			if cfg.IsRemote() {
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				resp, err := client.SecurityLogs(cmd.Context(), lines)
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintLogs(resp.Lines, resp.Entries)
			}

			components, err := cfg.OpenComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer components.Close()

			printVerbose(cmd, cfg, "Reading %s", components.Events.Path())
			raw, err := components.Events.GetSecurityLogs(lines)
			if err != nil {
				return err
			}
			entries := make([]securitylog.Entry, 0, len(raw))
			for _, line := range raw {
				if e, err := securitylog.ParseEntry(line); err == nil {
					entries = append(entries, e)
				}
			}
			return printer(cmd, cfg).PrintLogs(raw, entries)
		},
	}
	tailCmd.Flags().IntVarP(&lines, "lines", "n", 0, "number of lines (default from configuration)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the security log and its backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.IsRemote() {
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				if err := client.ClearSecurityLogs(cmd.Context()); err != nil {
					return err
				}
				return printer(cmd, cfg).PrintSuccess("Security log cleared")
			}

			components, err := cfg.OpenComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Events.ClearLogs(); err != nil {
				return fmt.Errorf("failed to clear security log: %w", err)
			}
			return printer(cmd, cfg).PrintSuccess("Security log cleared")
		},
	}

	logsCmd.AddCommand(tailCmd, clearCmd)
	return logsCmd
}
