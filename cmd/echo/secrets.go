package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/bridge"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/spf13/cobra"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Encrypted credentials shared through the data bridge",
}

func openBridge(st store.Store) (*bridge.Bridge, error) {
	key, err := bridge.LoadMasterKey(cfg.Tokens.MasterKey, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return bridge.New(st, key, logger)
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <service> <key=value>...",
	Short: "Store credentials for a service, replacing previous ones",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := make(map[string]string, len(args)-1)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("expected key=value, got %q", kv)
			}
			creds[k] = v
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			b, err := openBridge(st)
			if err != nil {
				return err
			}
			if err := b.Set(ctx, userFlag(cmd), args[0], creds); err != nil {
				return err
			}
			fmt.Printf("Stored %d field(s) for %s\n", len(creds), args[0])
			return nil
		})
	},
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <service>",
	Short: "Decrypt and print the credentials of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			b, err := openBridge(st)
			if err != nil {
				return err
			}
			creds, err := b.Credentials(ctx, userFlag(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(creds)
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List services with stored credentials (names only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			b, err := openBridge(st)
			if err != nil {
				return err
			}
			services, err := b.Services(ctx, userFlag(cmd))
			if err != nil {
				return err
			}
			for _, s := range services {
				fmt.Printf("%-12s %s %s\n", s.Name, strings.Join(s.Fields, ","), dimStyle.Render(s.UpdatedAt))
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{secretsSetCmd, secretsGetCmd, secretsListCmd} {
		c.Flags().String("user", "", "owner (default from config)")
	}
	secretsCmd.AddCommand(secretsSetCmd, secretsGetCmd, secretsListCmd)
	rootCmd.AddCommand(secretsCmd)
}
