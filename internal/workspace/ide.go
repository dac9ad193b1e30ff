package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the IDE worker looks for new tasks.
const DefaultPollInterval = 5 * time.Second

const buildPrompt = `Build the complete, production-ready code for this task:

Task: %s

Requirements:
- Write clean, well-documented Python code
- Include error handling
- Add type hints

Generate only the code, no explanations.`

// IDEWorker builds pending IDE tasks into files.
type IDEWorker struct {
	store    store.DocumentStore
	llm      llm.Completer
	dir      string
	interval time.Duration
	logger   *zap.Logger

	// OnBuilt is called with the task description and the written path.
	OnBuilt func(description, path string)
}

// NewIDEWorker creates a worker that writes generated code under dir.
func NewIDEWorker(st store.DocumentStore, c llm.Completer, dir string, logger *zap.Logger) *IDEWorker {
	return &IDEWorker{
		store:    st,
		llm:      c,
		dir:      dir,
		interval: DefaultPollInterval,
		logger:   logger.Named("ide"),
	}
}

// SetInterval overrides the poll interval.
func (w *IDEWorker) SetInterval(d time.Duration) {
	w.interval = d
}

// Filename derives the output file name from a task description: lowercase,
// spaces to underscores, at most 30 characters, .py suffix.
func Filename(description string) string {
	name := strings.ReplaceAll(strings.ToLower(description), " ", "_")
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
	if r := []rune(name); len(r) > 30 {
		name = string(r[:30])
	}
	if name == "" || name == "." || name == ".." {
		name = "task"
	}
	return name + ".py"
}

// Run processes pending tasks every interval until ctx is cancelled.
func (w *IDEWorker) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil {
			w.logger.Warn("task poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessPending builds every pending IDE task, oldest first, and returns how
// many were completed.
func (w *IDEWorker) ProcessPending(ctx context.Context) (int, error) {
	docs, err := w.store.Query(ctx, store.CollectionTasks, store.Doc{
		"assigned_to": AssigneeIDE,
		"status":      StatusPending,
	}, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to query tasks: %w", err)
	}

	done := 0
	for i := len(docs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		d := docs[i]
		path, err := w.Execute(ctx, d.Data.String("description"))
		if err != nil {
			w.logger.Warn("task failed", zap.String("id", d.ID), zap.Error(err))
			if uerr := w.store.Update(ctx, store.CollectionTasks, d.ID, store.Doc{
				"status": StatusFailed,
				"error":  err.Error(),
			}); uerr != nil {
				return done, fmt.Errorf("failed to mark task failed: %w", uerr)
			}
			continue
		}

		if err := w.store.Update(ctx, store.CollectionTasks, d.ID, store.Doc{
			"status":       StatusCompleted,
			"file_path":    path,
			"completed_at": time.Now().UTC(),
		}); err != nil {
			return done, fmt.Errorf("failed to mark task completed: %w", err)
		}
		done++
	}
	return done, nil
}

// Execute generates code for one task and writes it, returning the path.
func (w *IDEWorker) Execute(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("empty task description")
	}

	code, err := w.llm.ChatWithSystem(ctx, "You are an expert software engineer.", fmt.Sprintf(buildPrompt, description))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code = llm.StripCodeFence(code)

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	path := filepath.Join(w.dir, Filename(description))
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.logger.Info("task built", zap.String("file", path))
	if w.OnBuilt != nil {
		w.OnBuilt(description, path)
	}
	return path, nil
}
