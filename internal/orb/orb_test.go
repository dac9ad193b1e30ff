package orb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAppearance(t *testing.T) {
	tests := []struct {
		state cognition.State
		size  int
		color string
	}{
		{cognition.StateFlowing, 10, ColorBlue},
		{cognition.StateStuck, 30, ColorBlue},
		{cognition.StateFrustrated, 35, ColorOrange},
		{cognition.StateIdle, 20, ColorGray},
		{cognition.StateOffline, 20, ColorGray},
		{cognition.StateUnknown, 20, ColorGray},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			look := Appearance(tt.state)
			assert.Equal(t, tt.size, look.Size)
			assert.Equal(t, tt.color, look.Color)
		})
	}

	assert.Equal(t, time.Second, Appearance(cognition.StateStuck).Pulse)
	frustrated := Appearance(cognition.StateFrustrated)
	assert.Equal(t, 2*time.Second, frustrated.RevertAfter)
	assert.Equal(t, cognition.StateStuck, frustrated.RevertTo)
}

func TestSatelliteColor(t *testing.T) {
	assert.Equal(t, ColorBlue, SatelliteColor(cognition.StateFlowing))
	assert.Equal(t, ColorGray, SatelliteColor(cognition.StateStuck))
	assert.Equal(t, ColorGray, SatelliteColor(cognition.StateOffline))
}

func update(m Model, u notify.StateUpdate) Model {
	next, _ := m.Update(updateMsg(u))
	return next.(Model)
}

func TestModelFollowsOwnState(t *testing.T) {
	m := NewModel("alice", nil)
	assert.Equal(t, cognition.StateUnknown, m.Shown())

	m = update(m, notify.StateUpdate{Type: notify.TypeStateUpdate, UserID: "alice", State: cognition.StateFlowing})
	assert.Equal(t, cognition.StateFlowing, m.Shown())

	m = update(m, notify.StateUpdate{Type: notify.TypeStateUpdate, UserID: "bob", State: cognition.StateStuck,
		TeamStates: map[string]cognition.State{"bob": cognition.StateStuck}})
	assert.Equal(t, cognition.StateFlowing, m.Shown(), "other users only feed satellites")
	assert.Equal(t, cognition.StateStuck, m.team["bob"])
}

func TestModelFrustratedRevertsToStuck(t *testing.T) {
	m := NewModel("alice", nil)
	m = update(m, notify.StateUpdate{UserID: "alice", State: cognition.StateFrustrated})
	require.Equal(t, cognition.StateFrustrated, m.Shown())

	stale, _ := m.Update(revertMsg{seq: m.seq - 1})
	assert.Equal(t, cognition.StateFrustrated, stale.(Model).Shown())

	next, cmd := m.Update(revertMsg{seq: m.seq})
	assert.Equal(t, cognition.StateStuck, next.(Model).Shown())
	assert.NotNil(t, cmd, "stuck schedules a pulse")
}

func TestModelPulse(t *testing.T) {
	m := NewModel("alice", nil)
	m = update(m, notify.StateUpdate{UserID: "alice", State: cognition.StateStuck})

	next, cmd := m.Update(pulseMsg{seq: m.seq})
	m = next.(Model)
	assert.True(t, m.dimmed)
	assert.NotNil(t, cmd)

	next, _ = m.Update(pulseMsg{seq: m.seq})
	assert.False(t, next.(Model).dimmed)

	m = update(m, notify.StateUpdate{UserID: "alice", State: cognition.StateFlowing})
	next, cmd = m.Update(pulseMsg{seq: m.seq})
	assert.False(t, next.(Model).dimmed)
	assert.Nil(t, cmd, "steady states do not pulse")
}

func TestModelView(t *testing.T) {
	m := NewModel("alice", nil)
	m = update(m, notify.StateUpdate{UserID: "alice", State: cognition.StateFlowing,
		TeamStates: map[string]cognition.State{"alice": cognition.StateFlowing, "bob": cognition.StateIdle}})

	view := m.View()
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, string(cognition.StateFlowing))
	assert.NotContains(t, view, "disconnected")

	next, _ := m.Update(streamClosedMsg{})
	assert.Contains(t, next.(Model).View(), "disconnected")
}

func TestModelWaitReportsClosedStream(t *testing.T) {
	ch := make(chan notify.StateUpdate, 1)
	m := NewModel("alice", ch)
	ch <- notify.StateUpdate{UserID: "alice", State: cognition.StateIdle}
	assert.Equal(t, updateMsg(notify.StateUpdate{UserID: "alice", State: cognition.StateIdle}), m.Init()())

	close(ch)
	assert.Equal(t, streamClosedMsg{}, m.Init()())
}

func TestDialStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/alice", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]string{"type": "ping"})
		conn.WriteJSON(notify.StateUpdate{Type: notify.TypeStateUpdate, UserID: "alice", State: cognition.StateStuck})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := DialStream(ctx, WebSocketURL(strings.TrimPrefix(srv.URL, "http://"), "alice"))
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, cognition.StateStuck, u.State)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}

func TestDialStreamRefused(t *testing.T) {
	_, err := DialStream(context.Background(), "ws://127.0.0.1:1/ws/alice")
	assert.Error(t, err)
}
