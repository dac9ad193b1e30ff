package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/daemon"
	"github.com/Atharva-Kanherkar/echo/internal/harmonizer"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/spf13/cobra"
)

var (
	hrHeartRate float64
	hrHRV       float64
	hrSleep     float64
)

var harmonizeCmd = &cobra.Command{
	Use:   "harmonize",
	Short: "Bio-cognitive harmonizer: biometric readings and stress",
}

var harmonizeRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a biometric reading and show the recommendation",
	RunE: func(cmd *cobra.Command, args []string) error {
		user := userFlag(cmd)
		t := daemon.HarmonizerThresholds(cfg)
		return withStore(func(ctx context.Context, st store.Store) error {
			r := harmonizer.Reading{
				HeartRate:  hrHeartRate,
				HRV:        hrHRV,
				SleepHours: hrSleep,
				Timestamp:  time.Now().UTC(),
			}
			stress, err := harmonizer.Record(ctx, st, user, r, t)
			if err != nil {
				return err
			}

			state := cognition.StateUnknown
			if s, ok, err := st.GetState(ctx, user); err == nil && ok {
				state = s.State
			}
			fmt.Printf("Stress level: %d/100  (state %s)\n", stress, stateLabel(state))
			if rec := harmonizer.Analyze(r, stress, state, t); rec != nil {
				header("%s", rec.Message)
				fmt.Println(rec.Action)
				for _, alt := range rec.AlternativeTasks {
					fmt.Println("  - " + alt)
				}
			}
			return nil
		})
	},
}

var harmonizeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show today's biometric summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			h := harmonizer.New(st, userFlag(cmd), daemon.HarmonizerThresholds(cfg), nil, logger)
			s, err := h.Summary(ctx, time.Now())
			if err != nil {
				return err
			}
			return printJSON(s)
		})
	},
}

func init() {
	harmonizeRecordCmd.Flags().Float64Var(&hrHeartRate, "heart-rate", 0, "heart rate (bpm)")
	harmonizeRecordCmd.Flags().Float64Var(&hrHRV, "hrv", 0, "heart rate variability (ms)")
	harmonizeRecordCmd.Flags().Float64Var(&hrSleep, "sleep", 0, "hours of sleep")
	for _, c := range []*cobra.Command{harmonizeRecordCmd, harmonizeSummaryCmd} {
		c.Flags().String("user", "", "user (default from config)")
	}
	harmonizeCmd.AddCommand(harmonizeRecordCmd, harmonizeSummaryCmd)
	rootCmd.AddCommand(harmonizeCmd)
}
