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
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
)

func newPinCmd(cfg *Config) *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Compute and show TLS certificate pins",
	}

	computeCmd := &cobra.Command{
		Use:   "compute <pem-file>",
		Short: "Print the sha256 pin of every certificate or public key in a PEM file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// #nosec G304 - PEM path from CLI argument
			data, err := afero.ReadFile(cfg.Fs, args[0])
			if err != nil {
				return fmt.Errorf("failed to read PEM file: %w", err)
			}
			pins, err := pinsFromPEM(data)
			if err != nil {
				return err
			}
			return printer(cmd, cfg).PrintPins("", pins)
		},
	}

	var env string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active pin set",
		Long: `Show the pin set outbound API clients enforce. With --server the running
trustd is asked; otherwise the configuration is resolved locally. --env
selects a built-in environment set instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var set pinning.PinSet
			switch {
			case env != "":
				s, err := pinning.ForEnvironment(pinning.Environment(env))
				if err != nil {
					return err
				}
				set = s
			case cfg.IsRemote():
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				resp, err := client.Pins(cmd.Context())
				if err != nil {
					return err
				}
				set = pinning.PinSet{Host: resp.Host, Pins: resp.Pins}
			default:
				serverCfg, err := cfg.LoadServerConfig()
				if err != nil {
					return err
				}
				if set, err = serverCfg.Pinning.PinSet(); err != nil {
					return err
				}
			}
			return printer(cmd, cfg).PrintPins(set.Host, set.Pins)
		},
	}
	showCmd.Flags().StringVar(&env, "env", "", "built-in pin set (production, development)")

	pinCmd.AddCommand(computeCmd, showCmd)
	return pinCmd
}

// pinsFromPEM pins each CERTIFICATE and PUBLIC KEY block in data.
func pinsFromPEM(data []byte) ([]pinning.Pin, error) {
	var pins []pinning.Pin
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			pins = append(pins, pinning.PinFromCertificate(cert))
		case "PUBLIC KEY":
			pub, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse public key: %w", err)
			}
			pin, err := pinning.PinFromPublicKey(pub)
			if err != nil {
				return nil, err
			}
			pins = append(pins, pin)
		}
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("no certificates or public keys found")
	}
	return pins, nil
}
