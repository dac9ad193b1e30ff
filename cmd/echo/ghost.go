package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/ghost"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/spf13/cobra"
)

var ghostContext string

var ghostCmd = &cobra.Command{
	Use:   "ghost",
	Short: "Learn a coding style from GitHub and write code in it",
}

func newGhost(cmd *cobra.Command, st store.Store) *ghost.Ghost {
	return ghost.New(st, newClient(), ghost.NewGitHub(cfg.Tokens.GitHub, logger), userFlag(cmd), logger)
}

var ghostAnalyzeCmd = &cobra.Command{
	Use:   "analyze <github-username>",
	Short: "Index recent commits and build a style profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withStore(func(_ context.Context, st store.Store) error {
			p, err := newGhost(cmd, st).Index(ctx, args[0])
			if err != nil {
				return err
			}
			header("%s: %d repos, %d samples, %d commits", p.Username, p.Repos, p.SampleCount, p.CommitCount)
			return printJSON(p.Style)
		})
	},
}

var ghostMimicCmd = &cobra.Command{
	Use:   "mimic <task...>",
	Short: "Generate code for a task in the learned style",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withStore(func(_ context.Context, st store.Store) error {
			code, err := newGhost(cmd, st).Mimic(ctx, strings.Join(args, " "), ghostContext)
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		})
	},
}

func init() {
	ghostMimicCmd.Flags().StringVar(&ghostContext, "context", "", "extra context for the prompt")
	for _, c := range []*cobra.Command{ghostAnalyzeCmd, ghostMimicCmd} {
		c.Flags().String("user", "", "profile owner (default from config)")
	}
	ghostCmd.AddCommand(ghostAnalyzeCmd, ghostMimicCmd)
	rootCmd.AddCommand(ghostCmd)
}
