// Package team aggregates the flow states of a team and guards teammates in
// flow from interruptions.
package team

import (
	"sort"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
)

// Summary is a team-level view of flow states.
type Summary struct {
	TeamID    string                  `json:"team_id"`
	Total     int                     `json:"total_members"`
	Counts    map[cognition.State]int `json:"states"`
	FlowScore int                     `json:"flow_score"`
}

// Summarize counts states and computes the flow score: the percentage of
// members currently FLOWING, truncated, 0 for an empty team.
func Summarize(teamID string, states []store.UserState) Summary {
	s := Summary{
		TeamID: teamID,
		Total:  len(states),
		Counts: make(map[cognition.State]int),
	}
	if s.Total == 0 {
		return s
	}
	for _, st := range states {
		s.Counts[st.State]++
	}
	s.FlowScore = s.Counts[cognition.StateFlowing] * 100 / s.Total
	return s
}

// StateMap flattens states into user -> state for display.
func StateMap(states []store.UserState) map[string]cognition.State {
	out := make(map[string]cognition.State, len(states))
	for _, st := range states {
		out[st.UserID] = st.State
	}
	return out
}

// Satellites returns everyone but self, sorted by user id.
func Satellites(self string, states []store.UserState) []store.UserState {
	out := make([]store.UserState, 0, len(states))
	for _, st := range states {
		if st.UserID != self {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ShouldInterrupt reports whether a sender must be warned before messaging
// someone in recipientState. Only FLOWING is protected.
func ShouldInterrupt(recipientState cognition.State) bool {
	return recipientState == cognition.StateFlowing
}
