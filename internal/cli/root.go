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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ErrCheckFailed marks a command whose answer was "no". trustctl exits
// non-zero without printing it as an error.
var ErrCheckFailed = errors.New("check failed")

// NewRootCmd builds the trustctl command tree around cfg.
func NewRootCmd(cfg *Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trustctl",
		Short: "go-trustgate CLI - credential and trust administration",
		Long: `trustctl administers the go-trustgate trust core: the encrypted
secret store, account lockouts, the security event log, password policy,
input validation and TLS certificate pins.

Commands open the data directory named by the trustd configuration
(--config or $TRUSTGATE_CONFIG). With --server, logs, lockout, pin and
store status commands go through the trustd admin API instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "",
		"trustd config file (default is $"+ConfigEnv+", then built-in defaults)")
	flags.StringVar(&cfg.Server, "server", "",
		"trustd admin API URL, e.g. https://127.0.0.1:8443")
	flags.StringVar(&cfg.Token, "token", os.Getenv("TRUSTGATE_ADMIN_TOKEN"),
		"admin API bearer token (default is $TRUSTGATE_ADMIN_TOKEN)")
	flags.StringVar(&cfg.TLSCACert, "ca-cert", "",
		"CA certificate for the admin API")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", string(OutputFormatText),
		"output format (text, json, table)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(newVersionCmd(cfg))
	rootCmd.AddCommand(newLogsCmd(cfg))
	rootCmd.AddCommand(newLockoutCmd(cfg))
	rootCmd.AddCommand(newPasswordCmd(cfg))
	rootCmd.AddCommand(newValidateCmd(cfg))
	rootCmd.AddCommand(newPinCmd(cfg))
	rootCmd.AddCommand(newStoreCmd(cfg))

	return rootCmd
}

// Execute runs trustctl and reports errors on stderr.
func Execute() error {
	cfg := NewConfig()
	err := NewRootCmd(cfg).Execute()
	if err != nil && !errors.Is(err, ErrCheckFailed) {
		printer := NewPrinter(cfg.OutputFormat, os.Stderr)
		_ = printer.PrintError(err) // Error printing to stderr is best-effort
	}
	return err
}

// printer returns a Printer on the command's stdout.
func printer(cmd *cobra.Command, cfg *Config) *Printer {
	return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(cmd *cobra.Command, cfg *Config, format string, args ...any) {
	if cfg.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
