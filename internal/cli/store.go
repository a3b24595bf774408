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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustgate/internal/rest"
	"github.com/jeremyhahn/go-trustgate/internal/server"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
)

// Value types accepted by store get and put.
const (
	valueString = "string"
	valueInt    = "int"
	valueBool   = "bool"
	valueTime   = "time"
)

func newStoreCmd(cfg *Config) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Read and write secret store entries",
		Long: `Read and write entries in the encrypted secret store. These commands
always open the data directory directly; the admin API never serves
secret values.`,
	}

	var getType, def string
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print an entry, or the default when absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, cfg, func(store *secretstore.Store) error {
				value, err := getValue(store, args[0], getType, def)
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintValue(args[0], value)
			})
		},
	}
	getCmd.Flags().StringVarP(&getType, "type", "t", valueString, "value type (string, int, bool, time)")
	getCmd.Flags().StringVar(&def, "default", "", "value printed when the key is absent")

	var putType string
	putCmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write an entry",
		Long:  `Write an entry. Time values are RFC 3339.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, cfg, func(store *secretstore.Store) error {
				if err := putValue(store, args[0], args[1], putType); err != nil {
					return err
				}
				return printer(cmd, cfg).PrintSuccess(fmt.Sprintf("Stored %s", args[0]))
			})
		},
	}
	putCmd.Flags().StringVarP(&putType, "type", "t", valueString, "value type (string, int, bool, time)")

	removeCmd := &cobra.Command{
		Use:   "remove <key>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, cfg, func(store *secretstore.Store) error {
				if err := store.Remove(args[0]); err != nil {
					return err
				}
				return printer(cmd, cfg).PrintSuccess(fmt.Sprintf("Removed %s", args[0]))
			})
		},
	}

	containsCmd := &cobra.Command{
		Use:   "contains <key>",
		Short: "Report whether an entry exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, cfg, func(store *secretstore.Store) error {
				ok, err := store.Contains(args[0])
				if err != nil {
					return err
				}
				if err := printer(cmd, cfg).PrintCheck("exists", args[0], ok); err != nil {
					return err
				}
				if !ok {
					return ErrCheckFailed
				}
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether entries are encrypted and by which key provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.IsRemote() {
				client, err := cfg.CreateClient()
				if err != nil {
					return err
				}
				resp, err := client.StoreStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintStoreStatus(resp)
			}
			return withStore(cmd, cfg, func(store *secretstore.Store) error {
				st := store.Status()
				return printer(cmd, cfg).PrintStoreStatus(&rest.StoreResponse{
					Mode:      st.Mode.String(),
					Provider:  st.Provider,
					Algorithm: st.Algorithm,
					Reason:    st.Reason,
				})
			})
		},
	}

	storeCmd.AddCommand(getCmd, putCmd, removeCmd, containsCmd, statusCmd)
	return storeCmd
}

// withStore opens the local trust core for the duration of fn.
func withStore(cmd *cobra.Command, cfg *Config, fn func(*secretstore.Store) error) error {
	components, err := cfg.OpenComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer func(c *server.Components) { _ = c.Close() }(components)
	return fn(components.Store)
}

func getValue(store *secretstore.Store, key, typ, def string) (any, error) {
	switch typ {
	case valueString:
		return store.GetString(key, def)
	case valueInt:
		var d int64
		if def != "" {
			n, err := strconv.ParseInt(def, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid int default %q: %w", def, err)
			}
			d = n
		}
		return store.GetInt64(key, d)
	case valueBool:
		var d bool
		if def != "" {
			b, err := strconv.ParseBool(def)
			if err != nil {
				return nil, fmt.Errorf("invalid bool default %q: %w", def, err)
			}
			d = b
		}
		return store.GetBool(key, d)
	case valueTime:
		var d time.Time
		if def != "" {
			t, err := time.Parse(time.RFC3339, def)
			if err != nil {
				return nil, fmt.Errorf("invalid time default %q: %w", def, err)
			}
			d = t
		}
		t, err := store.GetTime(key, d)
		if err != nil {
			return nil, err
		}
		if t.IsZero() {
			return "", nil
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unknown value type %q", typ)
	}
}

func putValue(store *secretstore.Store, key, raw, typ string) error {
	switch typ {
	case valueString:
		return store.PutString(key, raw)
	case valueInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int value %q: %w", raw, err)
		}
		return store.PutInt64(key, n)
	case valueBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool value %q: %w", raw, err)
		}
		return store.PutBool(key, b)
	case valueTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid time value %q: %w", raw, err)
		}
		return store.PutTime(key, t)
	default:
		return fmt.Errorf("unknown value type %q", typ)
	}
}
