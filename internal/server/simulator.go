package server

import (
	"context"
	"math/rand"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

// DefaultSimulateInterval is how often demo teammates change state.
const DefaultSimulateInterval = 10 * time.Second

// SimulatedMembers are the demo teammates.
var SimulatedMembers = []string{"alice", "bob", "carol"}

var simulatedStates = []cognition.State{
	cognition.StateFlowing,
	cognition.StateStuck,
	cognition.StateFrustrated,
	cognition.StateIdle,
}

// simulate gives every demo teammate without a real sensor a random state,
// once immediately and then every SimulateInterval.
func (s *Server) simulate(ctx context.Context) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(s.opts.SimulateInterval)
	defer ticker.Stop()

	s.logger.Info("team simulator started", zap.Strings("members", SimulatedMembers))
	for {
		s.simulateOnce(ctx, rnd)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) simulateOnce(ctx context.Context, rnd *rand.Rand) {
	for _, member := range SimulatedMembers {
		if s.monitored(member) {
			continue
		}
		err := s.opts.Store.PutState(ctx, store.UserState{
			UserID:    member,
			TeamID:    s.opts.TeamID,
			State:     simulatedStates[rnd.Intn(len(simulatedStates))],
			Timestamp: time.Now().UTC(),
			Simulated: true,
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("failed to store simulated state", zap.String("user", member), zap.Error(err))
		}
	}
}
