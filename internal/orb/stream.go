package orb

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/gorilla/websocket"
)

// WebSocketURL builds the state stream URL of userID on an echo server at
// addr (host:port).
func WebSocketURL(addr, userID string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/" + url.PathEscape(userID)}
	return u.String()
}

// DialStream connects to a server's state stream and forwards every update
// until ctx is cancelled or the connection drops, then closes the channel.
func DialStream(ctx context.Context, wsURL string) (<-chan notify.StateUpdate, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	out := make(chan notify.StateUpdate, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var u notify.StateUpdate
			if err := conn.ReadJSON(&u); err != nil {
				return
			}
			if u.Type != notify.TypeStateUpdate {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
