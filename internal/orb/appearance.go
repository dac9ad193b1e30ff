// Package orb renders the flow-state indicator: a terminal orb whose size
// and color follow the user's state, ringed by small satellites for the rest
// of the team.
package orb

import (
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
)

// Colors.
const (
	ColorBlue   = "#6495ED" // cornflower blue
	ColorOrange = "#FFA500"
	ColorGray   = "#808080"
)

// Look is how the orb is drawn for a state.
type Look struct {
	Size  int
	Color string
	// Pulse is the pulse period; zero means steady.
	Pulse time.Duration
	// RevertAfter, when set, is how long the look holds before the orb
	// falls back to RevertTo.
	RevertAfter time.Duration
	RevertTo    cognition.State
}

// Appearance returns the look for state.
func Appearance(state cognition.State) Look {
	switch state {
	case cognition.StateFlowing:
		return Look{Size: 10, Color: ColorBlue}
	case cognition.StateStuck:
		return Look{Size: 30, Color: ColorBlue, Pulse: time.Second}
	case cognition.StateFrustrated:
		return Look{Size: 35, Color: ColorOrange, RevertAfter: 2 * time.Second, RevertTo: cognition.StateStuck}
	default:
		return Look{Size: 20, Color: ColorGray}
	}
}

// SatelliteColor is the color of a teammate's satellite.
func SatelliteColor(state cognition.State) string {
	if state == cognition.StateFlowing {
		return ColorBlue
	}
	return ColorGray
}
