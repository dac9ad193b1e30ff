package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture/input"
	"github.com/Atharva-Kanherkar/echo/internal/capture/window"
	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/config"
	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/Atharva-Kanherkar/echo/internal/sonar"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/team"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	title, body string
	urgency     notify.Urgency
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *fakeNotifier) Send(title, body string, urgency notify.Urgency) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{title, body, urgency})
	return nil
}

func (n *fakeNotifier) all() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

func newManager(t *testing.T) (*Manager, *store.MemoryStore, *fakeNotifier) {
	t.Helper()
	// unix socket paths are short; keep the data dir under /tmp
	dir, err := os.MkdirTemp("", "echo")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.DefaultConfig()
	cfg.UserID = "alice"
	cfg.TeamID = "team_alpha"
	cfg.DataDir = dir
	cfg.Sensor.IntervalSeconds = 1
	cfg.Workspace.Dir = filepath.Join(dir, "workspace")

	st := store.NewMemoryStore()
	plat := &platform.Platform{DisplayServer: platform.DisplayServerUnknown}
	m := NewManager(cfg, plat, st, nil, zap.NewNop())
	m.keyboard = input.NewKeyboard(m.tracker, filepath.Join(dir, "no-such-device"), zap.NewNop())

	n := &fakeNotifier{}
	m.SetNotifier(n)
	return m, st, n
}

func TestThresholds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sensor.ActivityThresholdSeconds = 30
	cfg.Sensor.FlowCadence = 20
	cfg.Sensor.FrustrationBackspace = 0

	th := Thresholds(cfg)
	assert.Equal(t, 30*time.Second, th.ActivityThreshold)
	assert.Equal(t, 20, th.FlowCadence)
	assert.Equal(t, cognition.DefaultThresholds().FrustrationBackspace, th.FrustrationBackspace)
}

func TestHarmonizerThresholds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Harmonizer.HeartRateThreshold = 90
	cfg.Harmonizer.LowHRVThreshold = 0

	th := HarmonizerThresholds(cfg)
	assert.Equal(t, 90.0, th.HeartRate)
	assert.Equal(t, 30.0, th.LowHRV)
	assert.Equal(t, 5.0, th.PoorSleepHours)
}

func TestGatherWithoutDevices(t *testing.T) {
	m, _, _ := newManager(t)

	sig, err := m.Gather(context.Background())
	require.NoError(t, err)
	assert.True(t, sig.GazeFocused)
	assert.Equal(t, 0.8, sig.GazeConfidence)
	assert.False(t, sig.AudioSpike)
	assert.Empty(t, sig.ActiveApp)
	assert.Zero(t, sig.TypingCadence)
}

func TestSourcesKeepSeparateInputWindows(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	a := m.NewSource()
	b := m.NewSource()

	now := time.Now()
	m.tracker.RecordKeyAt(now, true)
	m.tracker.RecordKeyAt(now, false)

	sa, err := a.Gather(ctx)
	require.NoError(t, err)
	sb, err := b.Gather(ctx)
	require.NoError(t, err)
	own, err := m.Gather(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0.5, sa.BackspaceFrequency)
	assert.Equal(t, 0.5, sb.BackspaceFrequency)
	assert.Equal(t, 0.5, own.BackspaceFrequency)
	assert.Equal(t, 2, sb.TypingCadence)
}

func TestProbeWithoutDevices(t *testing.T) {
	m, _, _ := newManager(t)

	got := m.Probe(context.Background())
	require.Len(t, got, 3)
	for _, st := range got {
		assert.False(t, st.Available, st.Name)
	}
}

func TestStartPublishesAndForwards(t *testing.T) {
	m, st, _ := newManager(t)
	ctx := context.Background()

	m.Start(ctx)
	defer m.Stop()

	assert.Eventually(t, func() bool {
		s, ok, _ := st.GetState(ctx, "alice")
		return ok && s.State == cognition.StateIdle && s.TeamID == "team_alpha"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(m.cfg.DataDir, notify.StateFileName))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-m.socket.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("socket not ready")
	}
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, err := notify.Listen(lctx, m.SocketPath())
	require.NoError(t, err)

	// Give the server a moment to register the client before the write.
	require.Eventually(t, func() bool { return m.socket.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, st.PutState(ctx, store.UserState{
		UserID: "bob", TeamID: "team_alpha", State: cognition.StateFlowing, Timestamp: time.Now(),
	}))

	select {
	case u := <-updates:
		assert.Equal(t, "alice", u.UserID)
		assert.Equal(t, cognition.StateIdle, u.State)
		assert.Equal(t, cognition.StateFlowing, u.TeamStates["bob"])
	case <-time.After(2 * time.Second):
		t.Fatal("no update on the socket")
	}

	last, err := notify.ReadStateFile(m.cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, cognition.StateFlowing, last.TeamStates["bob"])
}

func TestStopWithoutStart(t *testing.T) {
	m, _, _ := newManager(t)
	m.Stop()
}

func TestInterruptionGuardWarnsOnce(t *testing.T) {
	m, st, n := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.PutState(ctx, store.UserState{
		UserID: "bob", TeamID: "team_alpha", State: cognition.StateFlowing, Timestamp: time.Now(),
	}))

	slack := window.Info{Class: "Slack", Title: "Bob - Slack"}
	require.NoError(t, m.checkInterruption(ctx, slack))
	require.NoError(t, m.checkInterruption(ctx, slack))

	got := n.all()
	require.Len(t, got, 1)
	assert.Equal(t, notify.UrgencyCritical, got[0].urgency)
	assert.Contains(t, got[0].body, "bob")

	// Leaving the chat re-arms the warning.
	require.NoError(t, m.checkInterruption(ctx, window.Info{Class: "code", Title: "main.go"}))
	require.NoError(t, m.checkInterruption(ctx, slack))
	assert.Len(t, n.all(), 2)
}

func TestInterruptionGuardAllowsStuckTeammate(t *testing.T) {
	m, st, n := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.PutState(ctx, store.UserState{
		UserID: "bob", TeamID: "team_alpha", State: cognition.StateStuck, Timestamp: time.Now(),
	}))

	require.NoError(t, m.checkInterruption(ctx, window.Info{Class: "Slack", Title: "Bob - Slack"}))
	assert.Empty(t, n.all())
}

func TestClipboardSpawnsTasks(t *testing.T) {
	m, st, n := newManager(t)
	ctx := context.Background()

	m.onClipboard(ctx, "just some copied code")
	m.onClipboard(ctx, "TASK: add retries to the uploader")

	docs, err := st.Query(ctx, store.CollectionTasks, nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].Data.String("created_by"))

	got := n.all()
	require.Len(t, got, 1)
	assert.Equal(t, workspace.TaskDescription("TASK: add retries to the uploader"), got[0].body)
}

func TestHarmonizerSelection(t *testing.T) {
	m, _, _ := newManager(t)
	assert.Nil(t, m.harmonizer())

	m.cfg.Harmonizer.Simulate = true
	assert.NotNil(t, m.harmonizer())
}

func TestDeliveryNotifiesLocalUser(t *testing.T) {
	m, st, n := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.PutState(ctx, store.UserState{
		UserID: "alice", TeamID: "team_alpha", State: cognition.StateStuck, Timestamp: time.Now(),
	}))
	require.NoError(t, st.PutState(ctx, store.UserState{
		UserID: "bob", TeamID: "team_alpha", State: cognition.StateIdle, Timestamp: time.Now(),
	}))

	tm := team.NewManager(st, zap.NewNop())
	toAlice, err := tm.QueueMessage(ctx, "bob", "alice", "team_alpha", "can you review #42?")
	require.NoError(t, err)
	toBob, err := tm.QueueMessage(ctx, "carol", "bob", "team_alpha", "lunch?")
	require.NoError(t, err)

	got, err := m.team.DeliverPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, toAlice, got[0].ID)

	sent := n.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Message from bob", sent[0].title)
	assert.Equal(t, "can you review #42?", sent[0].body)

	// bob's message waits for bob's own daemon
	d, err := st.Get(ctx, store.CollectionPendingMessages, toBob)
	require.NoError(t, err)
	assert.Equal(t, "pending", d.Data.String("status"))
}

func TestSonarFinished(t *testing.T) {
	m, _, n := newManager(t)
	m.SonarFinished("s1", sonar.StatusCompleted)
	m.SonarFinished("s2", sonar.StatusFailed)

	got := n.all()
	require.Len(t, got, 2)
	assert.Equal(t, notify.UrgencyNormal, got[0].urgency)
	assert.Equal(t, "s1", got[0].body)
	assert.Equal(t, notify.UrgencyCritical, got[1].urgency)
}

func TestIDEWorkerNotifies(t *testing.T) {
	m, _, n := newManager(t)
	ide := m.IDEWorker()
	require.NotNil(t, ide.OnBuilt)
	ide.OnBuilt("parse config", "/tmp/parse_config.py")

	got := n.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Task built", got[0].title)
	assert.Contains(t, got[0].body, "parse_config.py")
}
