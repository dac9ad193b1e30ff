package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine per DB
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func backends(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "echo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.GetState(ctx, "alice")
			require.NoError(t, err)
			assert.False(t, ok)

			ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateFlowing, Timestamp: ts}))
			require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateStuck, Timestamp: ts.Add(time.Second)}))

			got, ok, err := s.GetState(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, cognition.StateStuck, got.State)
			assert.True(t, got.Timestamp.Equal(ts.Add(time.Second)))
		})
	}
}

func TestListStatesFiltersByTeam(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutState(ctx, UserState{UserID: "bob", TeamID: "t1", State: cognition.StateIdle}))
			require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateFlowing}))
			require.NoError(t, s.PutState(ctx, UserState{UserID: "zed", TeamID: "t2", State: cognition.StateStuck, Simulated: true}))

			team, err := s.ListStates(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, team, 2)
			assert.Equal(t, "alice", team[0].UserID)
			assert.Equal(t, "bob", team[1].UserID)

			all, err := s.ListStates(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.True(t, all[2].Simulated)
		})
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			states := []cognition.State{cognition.StateIdle, cognition.StateFlowing, cognition.StateStuck}
			for _, st := range states {
				require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: st}))
			}
			require.NoError(t, s.PutState(ctx, UserState{UserID: "bob", TeamID: "t1", State: cognition.StateIdle}))

			hist, err := s.History(ctx, "alice", 2)
			require.NoError(t, err)
			require.Len(t, hist, 2)
			assert.Equal(t, cognition.StateStuck, hist[0].State)
			assert.Equal(t, cognition.StateFlowing, hist[1].State)

			full, err := s.History(ctx, "alice", 0)
			require.NoError(t, err)
			assert.Len(t, full, 3)
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.Add(ctx, CollectionTasks, Doc{"description": "write tests", "status": "pending", "priority": 2})
			require.NoError(t, err)
			require.NotEmpty(t, id)

			d, err := s.Get(ctx, CollectionTasks, id)
			require.NoError(t, err)
			assert.Equal(t, "write tests", d.Data.String("description"))
			assert.Equal(t, 2.0, d.Data.Float("priority"))

			require.NoError(t, s.Update(ctx, CollectionTasks, id, Doc{"status": "completed"}))
			d, err = s.Get(ctx, CollectionTasks, id)
			require.NoError(t, err)
			assert.Equal(t, "completed", d.Data.String("status"))
			assert.Equal(t, "write tests", d.Data.String("description"))

			err = s.Update(ctx, CollectionTasks, "missing", Doc{"status": "x"})
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, CollectionTasks, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSetMergeAndReplace(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, CollectionProjectSonars, "p1", Doc{"status": "analyzing", "phase": 1}, true))
			require.NoError(t, s.Set(ctx, CollectionProjectSonars, "p1", Doc{"status": "researching"}, true))

			d, err := s.Get(ctx, CollectionProjectSonars, "p1")
			require.NoError(t, err)
			assert.Equal(t, "researching", d.Data.String("status"))
			assert.Equal(t, 1.0, d.Data.Float("phase"))

			require.NoError(t, s.Set(ctx, CollectionProjectSonars, "p1", Doc{"status": "done"}, false))
			d, err = s.Get(ctx, CollectionProjectSonars, "p1")
			require.NoError(t, err)
			_, hasPhase := d.Data["phase"]
			assert.False(t, hasPhase)
		})
	}
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, desc := range []string{"first", "second", "third"} {
				_, err := s.Add(ctx, CollectionTasks, Doc{"description": desc, "assigned_to": "ide", "status": "pending"})
				require.NoError(t, err)
				time.Sleep(2 * time.Millisecond)
			}
			_, err := s.Add(ctx, CollectionTasks, Doc{"description": "other", "assigned_to": "canvas", "status": "pending"})
			require.NoError(t, err)

			docs, err := s.Query(ctx, CollectionTasks, Doc{"assigned_to": "ide", "status": "pending"}, 0)
			require.NoError(t, err)
			require.Len(t, docs, 3)
			assert.Equal(t, "third", docs[0].Data.String("description"))
			assert.Equal(t, "first", docs[2].Data.String("description"))

			limited, err := s.Query(ctx, CollectionTasks, nil, 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			none, err := s.Query(ctx, CollectionABTests, nil, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestQueryMatchesNumbersAcrossTypes(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Add(ctx, CollectionBiometricData, Doc{"user_id": "alice", "sleep_hours": 7})
			require.NoError(t, err)

			docs, err := s.Query(ctx, CollectionBiometricData, Doc{"sleep_hours": 7.0}, 0)
			require.NoError(t, err)
			assert.Len(t, docs, 1)
		})
	}
}

func TestSubscribeReceivesTeamWrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ch, cancel := s.Subscribe("t1")
			defer cancel()

			require.NoError(t, s.PutState(ctx, UserState{UserID: "zed", TeamID: "t2", State: cognition.StateIdle}))
			require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateFlowing}))

			select {
			case got := <-ch:
				assert.Equal(t, "alice", got.UserID)
			case <-time.After(time.Second):
				t.Fatal("no update received")
			}
		})
	}
}

func TestBrokerCancelIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("")
	assert.Equal(t, 1, b.Len())

	cancel()
	cancel()
	assert.Equal(t, 0, b.Len())

	_, open := <-ch
	assert.False(t, open)

	// publishing with no subscribers is a no-op
	b.Publish(UserState{UserID: "alice"})
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(UserState{UserID: "alice"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "echo.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateFlowing}))
	require.NoError(t, s.Set(ctx, CollectionUserSecrets, "alice/github", Doc{"service": "github"}, false))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.GetState(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cognition.StateFlowing, got.State)

	d, err := s.Get(ctx, CollectionUserSecrets, "alice/github")
	require.NoError(t, err)
	assert.Equal(t, "github", d.Data.String("service"))
}

func TestMirroredPushesStates(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  UserState
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		_ = json.Unmarshal(data, &body)
		mu.Unlock()
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	local := NewMemoryStore()
	m := NewMirrored(local, NewRemote(srv.URL+"/", "secret", zap.NewNop()), zap.NewNop())
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateStuck}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paths) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/team_states/t1/user_states/alice.json?auth=secret", paths[0])
	assert.Equal(t, cognition.StateStuck, body.State)
	assert.False(t, body.Timestamp.IsZero(), "the remote copy carries the write time")

	local0, ok, err := local.GetState(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, local0.Timestamp.Equal(body.Timestamp))
}

func TestMirroredDoesNotWaitForRemote(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	local := NewMemoryStore()
	m := NewMirrored(local, NewRemote(srv.URL, "", zap.NewNop()), zap.NewNop())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateFlowing}))
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, m.Close())
}

func TestMirroredIgnoresRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	local := NewMemoryStore()
	m := NewMirrored(local, NewRemote(srv.URL, "", zap.NewNop()), zap.NewNop())
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.PutState(ctx, UserState{UserID: "alice", TeamID: "t1", State: cognition.StateIdle}))

	_, ok, err := local.GetState(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoteReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", zap.NewNop())
	err := r.PutState(context.Background(), UserState{UserID: "a", TeamID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
