// Package window reads the focused window.
//
// It extracts:
// - Application class (e.g., "code", "slack", "kitty")
// - Window title (e.g., "general | Acme - Slack")
//
// The classifier uses the class to tell "idle at the editor" from "away",
// and the interruption guard parses chat titles for the recipient.
package window

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/capture"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
)

// Info is the focused window.
type Info struct {
	Class string
	Title string
}

// App returns the best label for app matching: the class when present,
// the title otherwise.
func (i Info) App() string {
	if i.Class != "" {
		return i.Class
	}
	return i.Title
}

// Capturer captures active window information.
type Capturer struct {
	platform *platform.Platform
}

// New creates a new window Capturer.
func New(plat *platform.Platform) *Capturer {
	return &Capturer{platform: plat}
}

// Name returns the capturer identifier.
func (c *Capturer) Name() string {
	return "window"
}

// Available checks if window capture is possible on this system.
func (c *Capturer) Available() bool {
	return c.platform.CanCaptureWindow()
}

// Capture gets the current active window as a capture result.
func (c *Capturer) Capture(ctx context.Context) (*capture.Result, error) {
	info, err := c.Active(ctx)
	if err != nil {
		return nil, err
	}
	result := capture.NewResult("window")
	result.TextData = info.Title
	result.SetMetadata("app_class", info.Class)
	result.SetMetadata("window_title", info.Title)
	return result, nil
}

// Active returns the focused window.
func (c *Capturer) Active(ctx context.Context) (Info, error) {
	switch c.platform.DisplayServer {
	case platform.DisplayServerHyprland:
		out, err := exec.CommandContext(ctx, "hyprctl", "activewindow", "-j").Output()
		if err != nil {
			return Info{}, fmt.Errorf("hyprctl failed: %w", err)
		}
		return parseHyprland(out)

	case platform.DisplayServerSway:
		out, err := exec.CommandContext(ctx, "swaymsg", "-t", "get_tree").Output()
		if err != nil {
			return Info{}, fmt.Errorf("swaymsg failed: %w", err)
		}
		return parseSwayTree(out)

	case platform.DisplayServerX11:
		title, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname").Output()
		if err != nil {
			return Info{}, fmt.Errorf("xdotool failed: %w", err)
		}
		class, _ := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowclassname").Output()
		return Info{
			Class: strings.TrimSpace(string(class)),
			Title: strings.TrimSpace(string(title)),
		}, nil

	default:
		return Info{}, fmt.Errorf("unsupported display server: %s", c.platform.DisplayServer)
	}
}

// hyprlandWindow is the subset of `hyprctl activewindow -j` we read.
type hyprlandWindow struct {
	Class string `json:"class"`
	Title string `json:"title"`
}

func parseHyprland(out []byte) (Info, error) {
	var w hyprlandWindow
	if err := json.Unmarshal(out, &w); err != nil {
		return Info{}, fmt.Errorf("failed to parse hyprctl output: %w", err)
	}
	return Info{Class: w.Class, Title: w.Title}, nil
}

// swayNode is the subset of a sway tree node we read.
type swayNode struct {
	Name          string     `json:"name"`
	Focused       bool       `json:"focused"`
	AppID         string     `json:"app_id"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
	WindowProps   struct {
		Class string `json:"class"`
	} `json:"window_properties"`
}

func parseSwayTree(out []byte) (Info, error) {
	var root swayNode
	if err := json.Unmarshal(out, &root); err != nil {
		return Info{}, fmt.Errorf("failed to parse sway tree: %w", err)
	}
	node := findFocused(&root)
	if node == nil {
		return Info{}, fmt.Errorf("no focused window")
	}
	class := node.AppID
	if class == "" {
		class = node.WindowProps.Class
	}
	return Info{Class: class, Title: node.Name}, nil
}

func findFocused(n *swayNode) *swayNode {
	if n.Focused {
		return n
	}
	for i := range n.Nodes {
		if f := findFocused(&n.Nodes[i]); f != nil {
			return f
		}
	}
	for i := range n.FloatingNodes {
		if f := findFocused(&n.FloatingNodes[i]); f != nil {
			return f
		}
	}
	return nil
}
