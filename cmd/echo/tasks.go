package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/intent"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Canvas tasks for the IDE worker",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <note...>",
	Short: `Add a canvas note; "TASK: ..." and "TODO: ..." notes become tasks`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if !workspace.IsTask(text) {
			text = "TASK: " + text
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			id, err := workspace.NewCanvas(st, logger).SpawnTask(ctx, userFlag(cmd), text)
			if err != nil {
				return err
			}
			fmt.Printf("Task %s queued for the IDE worker\n", id)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		var where store.Doc
		if status != "" {
			where = store.Doc{"status": status}
		}
		return withStore(func(ctx context.Context, st store.Store) error {
			docs, err := st.Query(ctx, store.CollectionTasks, where, 20)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println(dimStyle.Render("no tasks"))
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%s  %-10s %s\n", dimStyle.Render(d.ID), d.Data.String("status"), d.Data.String("description"))
				if p := d.Data.String("file_path"); p != "" {
					fmt.Println(dimStyle.Render("    -> " + p))
				}
			}
			return nil
		})
	},
}

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "Intents captured from speech",
}

var intentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending intents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			pending, err := intent.Pending(ctx, st, userFlag(cmd))
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println(dimStyle.Render("no pending intents"))
				return nil
			}
			for _, in := range pending {
				what := in.Task
				if what == "" {
					what = in.Text
				}
				fmt.Printf("%s  [%s/%s] %s\n", dimStyle.Render(in.ID), in.Type, in.Urgency, what)
			}
			return nil
		})
	},
}

var intentsConvertCmd = &cobra.Command{
	Use:   "convert <intent-id>",
	Short: "Turn an intent into a canvas task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st store.Store) error {
			id, err := intent.ConvertToTask(ctx, st, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Task %s created\n", id)
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().String("user", "", "task creator (default from config)")
	taskListCmd.Flags().String("status", "", "only tasks with this status (pending, completed, failed)")
	taskCmd.AddCommand(taskAddCmd, taskListCmd)

	intentsListCmd.Flags().String("user", "", "user (default from config)")
	intentsCmd.AddCommand(intentsListCmd, intentsConvertCmd)

	rootCmd.AddCommand(taskCmd, intentsCmd)
}
