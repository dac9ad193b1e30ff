package input

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTrackerCadenceWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTrackerAt(start)

	// 5 presses two minutes ago, 8 in the last minute
	for i := 0; i < 5; i++ {
		tr.RecordKeyAt(start.Add(time.Duration(i)*time.Second), false)
	}
	now := start.Add(3 * time.Minute)
	for i := 0; i < 8; i++ {
		tr.RecordKeyAt(now.Add(-time.Duration(i+1)*time.Second), false)
	}

	snap := tr.Snapshot(now)
	assert.Equal(t, 8, snap.TypingCadence)
	assert.Equal(t, time.Second, snap.IdleTime)
}

func TestTrackerKeyWindowIsBounded(t *testing.T) {
	now := time.Now()
	tr := NewTrackerAt(now)
	for i := 0; i < 50; i++ {
		tr.RecordKeyAt(now, false)
	}
	assert.Equal(t, maxKeyEvents, tr.Snapshot(now).TypingCadence)
}

func TestTrackerBackspaceFrequencyResets(t *testing.T) {
	now := time.Now()
	tr := NewTrackerAt(now)
	for i := 0; i < 6; i++ {
		tr.RecordKeyAt(now, i < 3)
	}

	snap := tr.Snapshot(now)
	assert.InDelta(t, 0.5, snap.BackspaceFrequency, 1e-9)

	snap = tr.Snapshot(now)
	assert.Zero(t, snap.BackspaceFrequency)
}

func TestTrackerWindowsCountBackspacesSeparately(t *testing.T) {
	now := time.Now()
	tr := NewTrackerAt(now.Add(-time.Minute))
	a := tr.NewWindow()
	b := tr.NewWindow()
	for i := 0; i < 4; i++ {
		tr.RecordKeyAt(now.Add(-time.Duration(i)*time.Second), i%2 == 0)
	}

	// two backspaces over four keys, for both readers
	assert.Equal(t, 0.5, a.Snapshot(now).BackspaceFrequency)
	assert.Equal(t, 0.5, b.Snapshot(now).BackspaceFrequency)
	assert.Equal(t, 0.5, tr.Snapshot(now).BackspaceFrequency)

	assert.Zero(t, a.Snapshot(now).BackspaceFrequency)
	tr.RecordKeyAt(now, true)
	assert.Equal(t, 1.0/5, a.Snapshot(now).BackspaceFrequency)
	assert.Equal(t, 1.0/5, b.Snapshot(now).BackspaceFrequency)

	// a window made later starts from zero
	assert.Zero(t, tr.NewWindow().Snapshot(now).BackspaceFrequency)
}

func TestTrackerBackspaceWithoutRecentTyping(t *testing.T) {
	now := time.Now()
	tr := NewTrackerAt(now.Add(-5 * time.Minute))
	tr.RecordKeyAt(now.Add(-2*time.Minute), true)

	// the press fell out of the window, the denominator floors at 1
	snap := tr.Snapshot(now)
	assert.Equal(t, 0, snap.TypingCadence)
	assert.Equal(t, 1.0, snap.BackspaceFrequency)
}

func TestTrackerMouseWindow(t *testing.T) {
	now := time.Now()
	tr := NewTrackerAt(now)
	tr.RecordMouseAt(now.Add(-45 * time.Second))
	tr.RecordMouseAt(now.Add(-10 * time.Second))
	tr.RecordMouseAt(now.Add(-5 * time.Second))

	snap := tr.Snapshot(now)
	assert.Equal(t, 2, snap.MouseActivity)
	assert.Equal(t, 5*time.Second, snap.IdleTime)
}

func TestTrackerIdleFromStart(t *testing.T) {
	start := time.Now()
	tr := NewTrackerAt(start)
	assert.Equal(t, 90*time.Second, tr.Snapshot(start.Add(90*time.Second)).IdleTime)
}

func event(typ, code uint16, value int32) []byte {
	buf := make([]byte, eventSize)
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

func TestKeyboardReadEvents(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(event(evKey, 30, keyPress))    // 'a' down
	stream.Write(event(evKey, 30, 0))           // 'a' up
	stream.Write(event(evKey, keyBackspace, 1)) // backspace down
	stream.Write(event(evKey, keyBackspace, 2)) // autorepeat, ignored
	stream.Write(event(0x02, 0, 5))             // relative axis, ignored
	stream.Write(event(evKey, 31, keyPress))    // 's' down

	tr := NewTracker()
	kb := NewKeyboard(tr, "/dev/null", zap.NewNop())
	require.NoError(t, kb.readEvents(context.Background(), &stream))

	snap := tr.Snapshot(time.Now())
	assert.Equal(t, 3, snap.TypingCadence)
	assert.InDelta(t, 1.0/3.0, snap.BackspaceFrequency, 1e-9)
}

func TestScanDeviceList(t *testing.T) {
	devices := `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
B: EV=3

I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd leds event3
B: EV=120013

`
	assert.Equal(t, "/dev/input/event3", scanDeviceList(strings.NewReader(devices)))
	assert.Equal(t, "", scanDeviceList(strings.NewReader("N: Name=\"mouse\"\nH: Handlers=event5\n\n")))
}

func TestParseCursor(t *testing.T) {
	x, y, err := parseHyprlandCursor("1234, 567\n")
	require.NoError(t, err)
	assert.Equal(t, 1234, x)
	assert.Equal(t, 567, y)

	_, _, err = parseHyprlandCursor("garbage")
	assert.Error(t, err)

	x, y, err = parseXdotoolCursor("X=10\nY=20\nSCREEN=0\nWINDOW=123\n")
	require.NoError(t, err)
	assert.Equal(t, 10, x)
	assert.Equal(t, 20, y)

	_, _, err = parseXdotoolCursor("SCREEN=0\n")
	assert.Error(t, err)
}

func TestMouseRecordsMovement(t *testing.T) {
	tr := NewTracker()
	m := NewMouse(&platform.Platform{DisplayServer: platform.DisplayServerHyprland}, tr, zap.NewNop())
	m.interval = time.Millisecond

	var calls atomic.Int32
	m.position = func(ctx context.Context) (int, int, error) {
		n := int(calls.Add(1))
		// moves on every third poll
		return n / 3, 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return tr.Snapshot(time.Now()).MouseActivity >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
