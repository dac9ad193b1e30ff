package cognition

import (
	"strings"
	"time"
)

// Signals is one poll's worth of sensor readings.
type Signals struct {
	TypingCadence      int           // key presses in the last minute
	BackspaceFrequency float64       // backspaces / max(1, recent presses)
	MouseActivity      int           // mouse events in the last 30 seconds
	IdleTime           time.Duration // since the last keyboard or mouse event

	GazeFocused    bool
	GazeConfidence float64

	AudioSpike bool

	// ActiveApp is the focused window's class or title.
	ActiveApp string
}

// Thresholds are the cut-offs used by Classify.
type Thresholds struct {
	ActivityThreshold    time.Duration
	FrustrationBackspace float64
	FlowCadence          int
	FlowBackspace        float64
	FlowMouse            int
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActivityThreshold:    60 * time.Second,
		FrustrationBackspace: 0.3,
		FlowCadence:          10,
		FlowBackspace:        0.1,
		FlowMouse:            2,
	}
}

// codeEditors are substrings of app names that count as "staring at code".
var codeEditors = []string{"code", "visual studio", "pycharm", "sublime", "atom", "notepad"}

// IsCodeEditor reports whether app looks like a code editor.
func IsCodeEditor(app string) bool {
	app = strings.ToLower(app)
	for _, editor := range codeEditors {
		if strings.Contains(app, editor) {
			return true
		}
	}
	return false
}

// Classify maps signals to a state. Rules are evaluated top to bottom and the
// first match wins.
func Classify(s Signals, t Thresholds) State {
	// Long silence: someone still looking at their editor is stuck,
	// anyone else has walked away.
	if s.IdleTime > t.ActivityThreshold {
		if s.GazeFocused && IsCodeEditor(s.ActiveApp) {
			return StateStuck
		}
		return StateIdle
	}

	if s.BackspaceFrequency > t.FrustrationBackspace || s.AudioSpike || !s.GazeFocused {
		return StateFrustrated
	}

	if s.TypingCadence > t.FlowCadence &&
		s.BackspaceFrequency < t.FlowBackspace &&
		s.GazeFocused &&
		s.MouseActivity > t.FlowMouse {
		return StateFlowing
	}

	if s.TypingCadence > 0 || s.MouseActivity > 0 {
		return StateStuck
	}

	return StateIdle
}
