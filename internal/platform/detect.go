// Package platform handles detection of the operating system and display server.
//
// Sensing relies on external tools whose availability differs per desktop:
// - Cursor position (hyprctl on Hyprland, xdotool on X11)
// - Active window (hyprctl, swaymsg, xdotool)
// - Microphone samples (pw-record on PipeWire, parecord on PulseAudio, arecord on ALSA)
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// DisplayServer represents the display server type.
type DisplayServer string

const (
	DisplayServerHyprland DisplayServer = "hyprland"
	DisplayServerSway     DisplayServer = "sway"
	DisplayServerWayland  DisplayServer = "wayland" // Generic Wayland (GNOME, KDE)
	DisplayServerX11      DisplayServer = "x11"
	DisplayServerMacOS    DisplayServer = "macos"
	DisplayServerUnknown  DisplayServer = "unknown"
)

// Platform holds information about the detected platform.
type Platform struct {
	OS            string
	DisplayServer DisplayServer

	HasHyprctl    bool
	HasSwaymsg    bool
	HasXdotool    bool
	HasPwRecord   bool
	HasParecord   bool
	HasArecord    bool
	HasNotifySend bool
	HasGit        bool
	HasWlPaste    bool
	HasXclip      bool
}

func (p *Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.DisplayServer)
}

// Detect figures out what platform we're running on.
func Detect() *Platform {
	return &Platform{
		OS:            runtime.GOOS,
		DisplayServer: detectDisplayServer(),
		HasHyprctl:    commandExists("hyprctl"),
		HasSwaymsg:    commandExists("swaymsg"),
		HasXdotool:    commandExists("xdotool"),
		HasPwRecord:   commandExists("pw-record"),
		HasParecord:   commandExists("parecord"),
		HasArecord:    commandExists("arecord"),
		HasNotifySend: commandExists("notify-send"),
		HasGit:        commandExists("git"),
		HasWlPaste:    commandExists("wl-paste"),
		HasXclip:      commandExists("xclip"),
	}
}

func detectDisplayServer() DisplayServer {
	if runtime.GOOS == "darwin" {
		return DisplayServerMacOS
	}

	// Hyprland sets HYPRLAND_INSTANCE_SIGNATURE
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return DisplayServerHyprland
	}
	if os.Getenv("SWAYSOCK") != "" {
		return DisplayServerSway
	}

	sessionType := os.Getenv("XDG_SESSION_TYPE")
	if sessionType == "wayland" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayServerWayland
	}
	if sessionType == "x11" || os.Getenv("DISPLAY") != "" {
		return DisplayServerX11
	}

	return DisplayServerUnknown
}

func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// CanTrackCursor returns true if we have a tool that reports cursor position.
func (p *Platform) CanTrackCursor() bool {
	switch p.DisplayServer {
	case DisplayServerHyprland:
		return p.HasHyprctl
	case DisplayServerX11:
		return p.HasXdotool
	default:
		return false
	}
}

// CanCaptureWindow returns true if we have tools to read the active window.
func (p *Platform) CanCaptureWindow() bool {
	switch p.DisplayServer {
	case DisplayServerHyprland:
		return p.HasHyprctl
	case DisplayServerSway:
		return p.HasSwaymsg
	case DisplayServerX11:
		return p.HasXdotool
	default:
		return false
	}
}

// IsWayland reports whether the session runs a Wayland compositor.
func (p *Platform) IsWayland() bool {
	switch p.DisplayServer {
	case DisplayServerHyprland, DisplayServerSway, DisplayServerWayland:
		return true
	}
	return false
}

// CanReadClipboard returns true if a clipboard reader for the session exists.
func (p *Platform) CanReadClipboard() bool {
	if p.IsWayland() {
		return p.HasWlPaste
	}
	return p.HasXclip
}

// CanRecordAudio returns true if any supported recorder is installed.
func (p *Platform) CanRecordAudio() bool {
	return p.HasPwRecord || p.HasParecord || p.HasArecord
}

// SupportedFeatures returns a human-readable list of what we can sense.
func (p *Platform) SupportedFeatures() []string {
	var features []string
	if p.CanTrackCursor() {
		features = append(features, "mouse activity")
	}
	if p.CanCaptureWindow() {
		features = append(features, "active window")
	}
	if p.CanRecordAudio() {
		features = append(features, "audio spikes")
	}
	if p.CanReadClipboard() {
		features = append(features, "clipboard notes")
	}
	if p.HasNotifySend {
		features = append(features, "desktop notifications")
	}
	if len(features) == 0 {
		return []string{"none - missing required tools"}
	}
	return features
}

// CheckRequirements lists missing tools with install hints.
func (p *Platform) CheckRequirements() []string {
	var missing []string

	switch p.DisplayServer {
	case DisplayServerX11:
		if !p.HasXdotool {
			missing = append(missing, "xdotool (install: sudo pacman -S xdotool)")
		}
	case DisplayServerSway:
		if !p.HasSwaymsg {
			missing = append(missing, "swaymsg (install: sudo pacman -S sway)")
		}
	}
	if !p.CanRecordAudio() {
		missing = append(missing, "pw-record (install: sudo pacman -S pipewire)")
	}
	if !p.HasGit {
		missing = append(missing, "git (install: sudo pacman -S git)")
	}

	return missing
}
