// Package clipboard watches the clipboard for new text.
//
// Copying a "TASK: ..." note from anywhere is the desktop equivalent of
// writing it on the canvas; the daemon hands every new clipboard text to
// the canvas, which keeps only task notes.
//
// On Wayland we use wl-paste, on X11 xclip. Only text is read.
package clipboard

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"go.uber.org/zap"
)

// DefaultInterval is how often the clipboard is polled.
const DefaultInterval = 2 * time.Second

// Watcher reports clipboard text once per change.
type Watcher struct {
	platform *platform.Platform
	interval time.Duration
	logger   *zap.Logger

	// MaxLength is the longest text reported; longer texts are skipped.
	MaxLength int

	lastHash string

	// read is swappable for tests
	read func(ctx context.Context) (string, error)
}

// New creates a clipboard watcher.
func New(plat *platform.Platform, logger *zap.Logger) *Watcher {
	w := &Watcher{
		platform:  plat,
		interval:  DefaultInterval,
		logger:    logger.Named("clipboard"),
		MaxLength: 10000,
	}
	w.read = w.readText
	return w
}

// Name returns the capturer identifier.
func (w *Watcher) Name() string {
	return "clipboard"
}

// Available checks if clipboard capture is possible.
func (w *Watcher) Available() bool {
	return w.platform.CanReadClipboard()
}

// Capture reads the clipboard. The result has no text when it is empty,
// unchanged or too long.
func (w *Watcher) Capture(ctx context.Context) (*capture.Result, error) {
	text, changed, err := w.Changed(ctx)
	if err != nil {
		return nil, err
	}
	result := capture.NewResult("clipboard")
	result.SetMetadata("changed", fmt.Sprintf("%t", changed))
	if changed {
		result.TextData = text
		result.SetMetadata("length", fmt.Sprintf("%d", len(text)))
	}
	return result, nil
}

// Changed reads the clipboard and returns its text when it differs from
// the previous read.
func (w *Watcher) Changed(ctx context.Context) (string, bool, error) {
	text, err := w.read(ctx)
	if err != nil {
		return "", false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false, nil
	}

	hash := hashContent(text)
	if hash == w.lastHash {
		return "", false, nil
	}
	w.lastHash = hash

	if len(text) > w.MaxLength {
		return "", false, nil
	}
	return text, true, nil
}

// Run polls until ctx is cancelled and calls onText for every new text.
// Text already on the clipboard at start is not reported.
func (w *Watcher) Run(ctx context.Context, onText func(string)) error {
	if _, _, err := w.Changed(ctx); err != nil {
		w.logger.Debug("initial read failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			text, changed, err := w.Changed(ctx)
			if err != nil {
				w.logger.Debug("read failed", zap.Error(err))
				continue
			}
			if changed {
				onText(text)
			}
		}
	}
}

func (w *Watcher) readText(ctx context.Context) (string, error) {
	var cmd *exec.Cmd
	if w.platform.IsWayland() {
		cmd = exec.CommandContext(ctx, "wl-paste", "-n", "--type", "text/plain")
	} else {
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-o")
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		// Empty clipboard exits non-zero on both tools.
		return "", nil
	}
	return stdout.String(), nil
}

func hashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
