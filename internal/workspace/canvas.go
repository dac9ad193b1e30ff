// Package workspace connects the canvas, where ideas are jotted down, to the
// IDE, where tasks turn into code.
//
// A canvas note that starts with TASK: or TODO: becomes a document in the
// tasks collection assigned to the IDE. The IDE worker picks pending tasks
// up, generates code for them and writes it to the workspace directory. While
// the user is coding, the Socratic trigger watches the flow state and asks a
// single guiding question when they have been stuck for a while.
package workspace

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

// Task assignees and statuses.
const (
	AssigneeIDE    = "ide"
	AssigneeCanvas = "canvas"

	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var taskPrefix = regexp.MustCompile(`(?i)^\s*(TASK|TODO):`)

// IsTask reports whether a canvas note should be built.
func IsTask(text string) bool {
	return taskPrefix.MatchString(text)
}

// TaskDescription returns the text after the first ':', or the whole text.
func TaskDescription(text string) string {
	if _, after, ok := strings.Cut(text, ":"); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(text)
}

// Canvas turns notes into IDE tasks.
type Canvas struct {
	store  store.DocumentStore
	logger *zap.Logger
}

// NewCanvas creates a canvas backed by st.
func NewCanvas(st store.DocumentStore, logger *zap.Logger) *Canvas {
	return &Canvas{store: st, logger: logger.Named("canvas")}
}

// SpawnTask stores a pending IDE task for the note and returns its id.
func (c *Canvas) SpawnTask(ctx context.Context, createdBy, text string) (string, error) {
	desc := TaskDescription(text)
	if desc == "" {
		return "", fmt.Errorf("empty task description")
	}

	id, err := c.store.Add(ctx, store.CollectionTasks, store.Doc{
		"description": desc,
		"assigned_to": AssigneeIDE,
		"status":      StatusPending,
		"created_by":  createdBy,
		"timestamp":   time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to spawn task: %w", err)
	}

	c.logger.Info("task spawned",
		zap.String("id", id),
		zap.String("user", createdBy),
		zap.String("description", desc))
	return id, nil
}
