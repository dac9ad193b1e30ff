package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards may be served from anywhere
	},
}

// handleWS pushes a state_update for the user on connect and after every
// state write in the team.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Subscribe before the first snapshot so no write is missed in between.
	changes, unsubscribe := s.opts.Store.Subscribe(s.opts.TeamID)
	defer unsubscribe()

	// Reader: only watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("websocket connected", zap.String("user", user))
	defer s.logger.Debug("websocket disconnected", zap.String("user", user))

	if err := s.pushState(ctx, conn, user); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := s.pushState(ctx, conn, user); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushState(ctx context.Context, conn *websocket.Conn, user string) error {
	states, err := s.opts.Store.ListStates(ctx, s.opts.TeamID)
	if err != nil {
		s.logger.Warn("failed to list states", zap.Error(err))
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(notify.NewStateUpdate(user, states))
}
