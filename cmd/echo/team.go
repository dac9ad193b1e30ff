package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/team"
	"github.com/spf13/cobra"
)

var teamJSON bool

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Team flow states and interruption-safe messages",
}

var teamSummaryCmd = &cobra.Command{
	Use:   "summary [team]",
	Short: "Show every member's state and the team flow score",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID := cfg.TeamID
		if len(args) == 1 {
			teamID = args[0]
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			states, err := st.ListStates(ctx, teamID)
			if err != nil {
				return err
			}
			summary := team.Summarize(teamID, states)
			if teamJSON {
				return printJSON(map[string]any{"summary": summary, "members": team.StateMap(states)})
			}

			header("%s  flow score %d%%  (%d members)", teamID, summary.FlowScore, summary.Total)
			sort.Slice(states, func(i, j int) bool { return states[i].UserID < states[j].UserID })
			for _, s := range states {
				line := fmt.Sprintf("  %-16s %s", s.UserID, stateLabel(s.State))
				if s.Simulated {
					line += dimStyle.Render("  (simulated)")
				}
				fmt.Println(line + dimStyle.Render("  "+s.Timestamp.Local().Format("15:04:05")))
			}
			return nil
		})
	},
}

var teamMessageCmd = &cobra.Command{
	Use:   "message <recipient> <text...>",
	Short: "Queue a message, delivered once the recipient leaves flow",
	Long: `Queue a message for a teammate. Their daemon shows it as a desktop
notification the next time they are STUCK or IDLE.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			recipient := team.UserKey(args[0])
			id, err := team.NewManager(st, logger).QueueMessage(ctx, cfg.UserID, recipient, cfg.TeamID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			line, err := messageStatus(ctx, st, id)
			if err != nil {
				return err
			}
			fmt.Println(line)
			return nil
		})
	},
}

// messageStatus describes the queued message id and its recipient's state.
func messageStatus(ctx context.Context, st store.Store, id string) (string, error) {
	d, err := st.Get(ctx, store.CollectionPendingMessages, id)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	recipient := d.Data.String("recipient")
	if d.Data.String("status") == "delivered" {
		return fmt.Sprintf("Delivered to %s (%s)", recipient, id), nil
	}

	s, ok, err := st.GetState(ctx, recipient)
	if err != nil {
		return "", fmt.Errorf("failed to read recipient state: %w", err)
	}
	state := cognition.StateIdle
	if ok {
		state = s.State
	}
	if state.Interruptible() {
		return fmt.Sprintf("Queued for %s (%s), %s: delivered on their next check", recipient, id, stateLabel(state)), nil
	}
	return fmt.Sprintf("Queued for %s (%s), %s: held until they leave flow", recipient, id, stateLabel(state)), nil
}

func init() {
	teamSummaryCmd.Flags().BoolVar(&teamJSON, "json", false, "print JSON")
	teamCmd.AddCommand(teamSummaryCmd, teamMessageCmd)
	rootCmd.AddCommand(teamCmd)
}
