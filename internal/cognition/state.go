// Package cognition infers a user's flow state from input-device signals.
//
// The classifier is a fixed set of threshold rules, evaluated in order, over a
// Signals snapshot gathered once per poll. It has no memory: any state may
// follow any other on the next poll. The Sensor wraps it in a polling loop
// and publishes only when the label changes.
package cognition

import (
	"fmt"
	"strings"
)

// State is a cognitive state label.
type State string

const (
	StateIdle       State = "IDLE"
	StateFlowing    State = "FLOWING"
	StateStuck      State = "STUCK"
	StateFrustrated State = "FRUSTRATED"

	// StateOffline marks a user whose monitoring was stopped.
	StateOffline State = "OFFLINE"
	// StateUnknown is reported for users with no record at all.
	StateUnknown State = "UNKNOWN"
)

// ClassifierStates are the labels Classify can produce.
var ClassifierStates = []State{StateIdle, StateFlowing, StateStuck, StateFrustrated}

func (s State) String() string {
	return string(s)
}

// Interruptible reports whether a message may be delivered to a user in
// this state without breaking their focus.
func (s State) Interruptible() bool {
	return s == StateStuck || s == StateIdle
}

// ParseState parses a label case-insensitively.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateIdle, StateFlowing, StateStuck, StateFrustrated, StateOffline, StateUnknown:
		return st, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}
