package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/market"
	"github.com/Atharva-Kanherkar/echo/internal/sonar"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/spf13/cobra"
)

var sonarCmd = &cobra.Command{
	Use:   "sonar",
	Short: "Project sonars: research, architecture and scaffolding for a problem",
}

var sonarDeployCmd = &cobra.Command{
	Use:   "deploy <problem>",
	Short: "Deploy a sonar and run every phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withStore(func(_ context.Context, st store.Store) error {
			m := sonar.NewManager(st, newClient(), userFlag(cmd), cfg.Workspace.Dir, logger)
			id, err := m.Deploy(ctx, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Printf("Sonar %s deployed\n", id)
			if err := m.Run(ctx, id); err != nil {
				return err
			}
			report, err := m.Report(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		})
	},
}

var sonarStatusCmd = &cobra.Command{
	Use:   "status [sonar-id]",
	Short: "Show a sonar report, or list the user's sonars",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			m := sonar.NewManager(st, newClient(), userFlag(cmd), cfg.Workspace.Dir, logger)
			if len(args) == 1 {
				report, err := m.Report(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(report)
				return nil
			}
			docs, err := m.List(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, d := range docs {
				fmt.Printf("%s  %-10s %-8s %s\n", dimStyle.Render(d.ID), d.Data.String("status"),
					sonar.Duration(d.Data, now), d.Data.String("problem"))
			}
			return nil
		})
	},
}

var (
	abHeadlines []string
	abBudget    float64
	abHours     float64
)

var abtestCmd = &cobra.Command{
	Use:   "abtest",
	Short: "Market validation A/B tests",
}

var abtestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate landing pages for each headline and start a test",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(abHeadlines) == 0 {
			return fmt.Errorf("at least one --headline is required")
		}
		variants := make([]market.Variant, len(abHeadlines))
		for i, h := range abHeadlines {
			variants[i] = market.Variant{Headline: h}
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			v := market.NewValidator(st, newClient(), cfg.Market.PagesDir, cfg.Market.Platforms, logger)
			id, err := v.CreateTest(ctx, market.TestRequest{
				UserID:   userFlag(cmd),
				Variants: variants,
				Budget:   abBudget,
				Duration: time.Duration(abHours * float64(time.Hour)),
			})
			if err != nil {
				return err
			}
			fmt.Printf("A/B test %s running (pages in %s)\n", id, cfg.Market.PagesDir)
			return nil
		})
	},
}

var abtestResultsCmd = &cobra.Command{
	Use:   "results <test-id>",
	Short: "Show metrics, and the analysis once the test is complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			v := market.NewValidator(st, newClient(), cfg.Market.PagesDir, cfg.Market.Platforms, logger)
			out, err := v.Results(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		})
	},
}

func init() {
	sonarDeployCmd.Flags().String("user", "", "owner (default from config)")
	sonarStatusCmd.Flags().String("user", "", "owner (default from config)")
	sonarCmd.AddCommand(sonarDeployCmd, sonarStatusCmd)

	abtestCreateCmd.Flags().StringArrayVar(&abHeadlines, "headline", nil, "variant headline (repeatable)")
	abtestCreateCmd.Flags().Float64Var(&abBudget, "budget", market.DefaultBudget, "ad budget")
	abtestCreateCmd.Flags().Float64Var(&abHours, "hours", market.DefaultDuration.Hours(), "test duration in hours")
	abtestCreateCmd.Flags().String("user", "", "owner (default from config)")
	abtestCmd.AddCommand(abtestCreateCmd, abtestResultsCmd)

	rootCmd.AddCommand(sonarCmd, abtestCmd)
}
