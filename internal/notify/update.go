// Package notify carries state changes to the user's local surfaces: a unix
// socket for widgets and the terminal orb, a JSON state file, and desktop
// notifications.
package notify

import (
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
)

// TypeStateUpdate is the type of every state push.
const TypeStateUpdate = "state_update"

// StateUpdate is pushed to clients whenever a state changes. The same shape
// is used on the unix socket and the WebSocket.
type StateUpdate struct {
	Type       string                     `json:"type"`
	UserID     string                     `json:"user_id"`
	State      cognition.State            `json:"state"`
	Timestamp  time.Time                  `json:"timestamp"`
	TeamStates map[string]cognition.State `json:"team_states"`
}

// NewStateUpdate builds the update for userID from the team's states. The
// user's own state is looked up in states; a user without a record is
// UNKNOWN.
func NewStateUpdate(userID string, states []store.UserState) StateUpdate {
	u := StateUpdate{
		Type:       TypeStateUpdate,
		UserID:     userID,
		State:      cognition.StateUnknown,
		Timestamp:  time.Now().UTC(),
		TeamStates: make(map[string]cognition.State, len(states)),
	}
	for _, s := range states {
		u.TeamStates[s.UserID] = s.State
		if s.UserID == userID {
			u.State = s.State
			u.Timestamp = s.Timestamp
		}
	}
	return u
}
