package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	assistLine  int
	assistWrite bool
)

var ideCmd = &cobra.Command{
	Use:   "ide",
	Short: "Workspace tools: task worker, Socratic assistant, repos and Figma",
}

var ideWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Process pending canvas tasks once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withStore(func(_ context.Context, st store.Store) error {
			w := workspace.NewIDEWorker(st, newClient(), cfg.Workspace.Dir, logger)
			n, err := w.ProcessPending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d task(s) completed in %s\n", n, cfg.Workspace.Dir)
			return nil
		})
	},
}

var ideAssistCmd = &cobra.Command{
	Use:   "assist [file]",
	Short: "Ask a Socratic question about a file (default: latest in the workspace)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		file, err := openFile(args)
		if err != nil {
			return err
		}
		t := workspace.NewSocraticTrigger(newClient(), workspace.DefaultStuckAfter)
		q, err := t.Question(ctx, file)
		if err != nil {
			return err
		}
		fmt.Println(q)

		if assistWrite {
			out := workspace.InsertComment(file.Content, file.Line, q)
			if err := os.WriteFile(file.Path, []byte(out), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", file.Path, err)
			}
			fmt.Println(dimStyle.Render("inserted into " + file.Path))
		}
		return nil
	},
}

func openFile(args []string) (*workspace.OpenFile, error) {
	if len(args) == 0 {
		f, err := workspace.LatestFile(cfg.Workspace.Dir)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("no files in %s", cfg.Workspace.Dir)
		}
		if assistLine >= 0 {
			f.Line = assistLine
		}
		return f, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	content := string(data)
	line := assistLine
	if line < 0 {
		line = strings.Count(strings.TrimRight(content, "\n"), "\n")
	}
	return &workspace.OpenFile{Path: args[0], Content: content, Line: line}, nil
}

var ideCloneCmd = &cobra.Command{
	Use:   "clone <repo-url>",
	Short: "Shallow-clone a repository into the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		target, err := workspace.CloneRepo(ctx, args[0], cfg.Workspace.Dir)
		if err != nil {
			return err
		}
		sum, err := workspace.Summarize(ctx, target, 5)
		if err != nil {
			return err
		}
		header("%s (%s)", filepath.Base(sum.Root), sum.Branch)
		for _, c := range sum.Commits {
			fmt.Println("  " + c)
		}
		return nil
	},
}

var ideFigmaCmd = &cobra.Command{
	Use:   "figma <file-url>",
	Short: "Render the first frames of a Figma file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		images, err := workspace.NewFigmaClient(cfg.Tokens.Figma, logger).Import(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(images)
	},
}

func init() {
	ideAssistCmd.Flags().IntVar(&assistLine, "line", -1, "zero-based cursor line (default: last line)")
	ideAssistCmd.Flags().BoolVar(&assistWrite, "write", false, "insert the question as a comment into the file")
	ideCmd.AddCommand(ideWorkCmd, ideAssistCmd, ideCloneCmd, ideFigmaCmd)
	rootCmd.AddCommand(ideCmd)
}
