// Package input tracks keyboard and mouse activity for the cognitive sensor.
//
// Only timing is recorded, never which key was pressed. The Tracker keeps
// short bounded windows:
// - the last 20 key presses (typing cadence over the last minute)
// - a backspace counter; each Window reports the backspaces since its own
//   previous snapshot
// - the last 10 mouse events (activity over the last 30 seconds)
package input

import (
	"sync"
	"time"
)

const (
	maxKeyEvents   = 20
	maxMouseEvents = 10

	cadenceWindow = 60 * time.Second
	mouseWindow   = 30 * time.Second
)

// Snapshot is the activity summary for one sensor poll.
type Snapshot struct {
	TypingCadence      int
	BackspaceFrequency float64
	MouseActivity      int
	IdleTime           time.Duration
}

// Tracker accumulates input events. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	keys       []time.Time
	mouse      []time.Time
	backspaces int // total since start
	lastInput  time.Time

	own *Window
}

// Window is one reader's view of a Tracker. Several sensors can share a
// tracker, each through its own Window, without stealing backspaces from
// one another.
type Window struct {
	t    *Tracker
	mark int // tracker backspace total at the last snapshot
}

// NewTracker creates a tracker whose idle clock starts now.
func NewTracker() *Tracker {
	return NewTrackerAt(time.Now())
}

// NewTrackerAt creates a tracker whose idle clock starts at start.
func NewTrackerAt(start time.Time) *Tracker {
	t := &Tracker{
		keys:      make([]time.Time, 0, maxKeyEvents),
		mouse:     make([]time.Time, 0, maxMouseEvents),
		lastInput: start,
	}
	t.own = &Window{t: t}
	return t
}

// NewWindow returns a Window that counts backspaces from now on.
func (t *Tracker) NewWindow() *Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Window{t: t, mark: t.backspaces}
}

// RecordKey records a key press at the current time.
func (t *Tracker) RecordKey(backspace bool) {
	t.RecordKeyAt(time.Now(), backspace)
}

// RecordKeyAt records a key press at ts.
func (t *Tracker) RecordKeyAt(ts time.Time, backspace bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.keys = appendBounded(t.keys, ts, maxKeyEvents)
	if backspace {
		t.backspaces++
	}
	t.touch(ts)
}

// RecordMouse records a mouse move or click at the current time.
func (t *Tracker) RecordMouse() {
	t.RecordMouseAt(time.Now())
}

// RecordMouseAt records a mouse move or click at ts.
func (t *Tracker) RecordMouseAt(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mouse = appendBounded(t.mouse, ts, maxMouseEvents)
	t.touch(ts)
}

func (t *Tracker) touch(ts time.Time) {
	if ts.After(t.lastInput) {
		t.lastInput = ts
	}
}

// Snapshot summarizes activity as of now through the tracker's own Window.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	return t.own.Snapshot(now)
}

// Snapshot summarizes activity as of now. Backspace frequency covers the
// backspaces since this window's previous snapshot.
func (w *Window) Snapshot(now time.Time) Snapshot {
	t := w.t
	t.mu.Lock()
	defer t.mu.Unlock()

	recentKeys := countSince(t.keys, now.Add(-cadenceWindow))
	denom := recentKeys
	if denom < 1 {
		denom = 1
	}

	snap := Snapshot{
		TypingCadence:      recentKeys,
		BackspaceFrequency: float64(t.backspaces-w.mark) / float64(denom),
		MouseActivity:      countSince(t.mouse, now.Add(-mouseWindow)),
		IdleTime:           now.Sub(t.lastInput),
	}
	if snap.IdleTime < 0 {
		snap.IdleTime = 0
	}

	w.mark = t.backspaces
	return snap
}

// appendBounded appends ts, dropping the oldest entry once max is reached.
func appendBounded(events []time.Time, ts time.Time, max int) []time.Time {
	if len(events) >= max {
		copy(events, events[1:])
		events = events[:len(events)-1]
	}
	return append(events, ts)
}

func countSince(events []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range events {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
