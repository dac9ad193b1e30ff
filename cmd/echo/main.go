// Package main is the entry point for ECHO, the cognitive state sensor.
//
// Usage:
//
//	echo serve              - API server, dashboard and local inputs
//	echo sense              - local daemon: sensor, socket, guard, jobs
//	echo orb                - terminal orb for the local user
//	echo team summary       - team flow summary
//	echo task "TASK: ..."   - hand a note to the IDE worker
//
// Run `echo help` for the full list.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Atharva-Kanherkar/echo/internal/config"
	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath  string
	verbose  bool
	inMemory bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "echo",
	Short: "ECHO - cognitive state sensing for developer teams",
	Long: `ECHO watches typing, mouse and window activity, classifies the user as
FLOWING, STUCK, FRUSTRATED or IDLE, and shares the state with the team.

Configuration is read from ~/.config/echo/config.yaml (see 'echo config init')
and ECHO_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l

		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.config/echo/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "keep everything in memory instead of the database")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured store: SQLite (or memory with --memory),
// mirrored to the remote database when one is configured.
func openStore() (store.Store, error) {
	var st store.Store
	if inMemory {
		st = store.NewMemoryStore()
	} else {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = s
	}

	if cfg.Store.RemoteURL != "" {
		remote := store.NewRemote(cfg.Store.RemoteURL, cfg.Store.RemoteKey, logger)
		st = store.NewMirrored(st, remote, logger)
		logger.Info("mirroring states", zap.String("remote", cfg.Store.RemoteURL))
	}
	return st, nil
}

// newClient creates the LLM client. Without an API key every call fails
// with llm.ErrNoAPIKey.
func newClient() *llm.Client {
	c := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, logger)
	if cfg.LLM.ChatModel != "" {
		c.ChatModel = cfg.LLM.ChatModel
	}
	if cfg.LLM.MaxTokens > 0 {
		c.MaxTokens = cfg.LLM.MaxTokens
	}
	return c
}

// withStore opens the store, runs fn and closes the store.
func withStore(fn func(ctx context.Context, st store.Store) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}

// userFlag returns the --user value or the configured user.
func userFlag(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("user"); u != "" {
		return u
	}
	return cfg.UserID
}
