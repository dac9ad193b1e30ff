package main

import (
	"fmt"
	"path/filepath"

	"github.com/Atharva-Kanherkar/echo/internal/daemon"
	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/Atharva-Kanherkar/echo/internal/orb"
	"github.com/spf13/cobra"
)

var orbServer string

var orbCmd = &cobra.Command{
	Use:   "orb",
	Short: "Show the cognitive state orb",
	Long: `Show a pulsing orb for the user's state with teammates as satellites.

By default the orb follows the local daemon over its unix socket ('echo sense'
must be running). With --server it follows an API server over WebSocket.

Keys: q or Ctrl+C to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		user := userFlag(cmd)
		var (
			updates <-chan notify.StateUpdate
			err     error
		)
		if orbServer != "" {
			updates, err = orb.DialStream(ctx, orb.WebSocketURL(orbServer, user))
		} else {
			updates, err = notify.Listen(ctx, filepath.Join(cfg.DataDir, daemon.SocketName))
		}
		if err != nil {
			return fmt.Errorf("failed to follow states: %w", err)
		}
		return orb.Run(ctx, user, updates)
	},
}

func init() {
	orbCmd.Flags().StringVar(&orbServer, "server", "", "API server address (host:port) to follow instead of the local daemon")
	orbCmd.Flags().String("user", "", "user to show (default from config)")
	rootCmd.AddCommand(orbCmd)
}
