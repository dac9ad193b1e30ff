package input

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"go.uber.org/zap"
)

// Mouse polls the cursor position and records a mouse event whenever it
// moves. Wayland compositors do not expose pointer events to clients, so
// polling the compositor is the portable option.
type Mouse struct {
	platform *platform.Platform
	tracker  *Tracker
	interval time.Duration
	logger   *zap.Logger

	// position is swappable for tests
	position func(ctx context.Context) (int, int, error)
}

// NewMouse creates a cursor poller.
func NewMouse(plat *platform.Platform, tracker *Tracker, logger *zap.Logger) *Mouse {
	m := &Mouse{
		platform: plat,
		tracker:  tracker,
		interval: 200 * time.Millisecond,
		logger:   logger.Named("mouse"),
	}
	m.position = m.cursorPosition
	return m
}

// Available checks if cursor tracking is possible.
func (m *Mouse) Available() bool {
	return m.platform.CanTrackCursor()
}

// Run polls until ctx is cancelled.
func (m *Mouse) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastX, lastY := -1, -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			x, y, err := m.position(ctx)
			if err != nil {
				m.logger.Debug("cursor position failed", zap.Error(err))
				continue
			}
			if lastX >= 0 && (x != lastX || y != lastY) {
				m.tracker.RecordMouse()
			}
			lastX, lastY = x, y
		}
	}
}

func (m *Mouse) cursorPosition(ctx context.Context) (int, int, error) {
	switch m.platform.DisplayServer {
	case platform.DisplayServerHyprland:
		out, err := exec.CommandContext(ctx, "hyprctl", "cursorpos").Output()
		if err != nil {
			return 0, 0, fmt.Errorf("hyprctl failed: %w", err)
		}
		return parseHyprlandCursor(string(out))
	case platform.DisplayServerX11:
		out, err := exec.CommandContext(ctx, "xdotool", "getmouselocation", "--shell").Output()
		if err != nil {
			return 0, 0, fmt.Errorf("xdotool failed: %w", err)
		}
		return parseXdotoolCursor(string(out))
	default:
		return 0, 0, fmt.Errorf("cursor tracking unsupported on %s", m.platform.DisplayServer)
	}
}

// parseHyprlandCursor parses "1234, 567".
func parseHyprlandCursor(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected cursorpos output %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// parseXdotoolCursor parses the X=/Y= lines of `xdotool getmouselocation --shell`.
func parseXdotoolCursor(s string) (int, int, error) {
	x, y := -1, -1
	for _, line := range strings.Split(s, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			x = n
		case "Y":
			y = n
		}
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("unexpected getmouselocation output %q", s)
	}
	return x, y, nil
}
