package clipboard

import (
	"context"
	"errors"
	"strings"
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

func fakeWatcher(texts ...string) *Watcher {
	w := New(&platform.Platform{DisplayServer: platform.DisplayServerX11}, zap.NewNop())
	i := 0
	w.read = func(ctx context.Context) (string, error) {
		if i >= len(texts) {
			return texts[len(texts)-1], nil
		}
		t := texts[i]
		i++
		return t, nil
	}
	return w
}

func TestChanged(t *testing.T) {
	ctx := context.Background()
	w := fakeWatcher("TASK: one", "TASK: one", "  ", "TASK: two")

	text, changed, err := w.Changed(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "TASK: one", text)

	_, changed, _ = w.Changed(ctx)
	assert.False(t, changed, "same text twice")

	_, changed, _ = w.Changed(ctx)
	assert.False(t, changed, "blank clipboard")

	text, changed, _ = w.Changed(ctx)
	assert.True(t, changed)
	assert.Equal(t, "TASK: two", text)
}

func TestChangedSkipsLongText(t *testing.T) {
	w := fakeWatcher(strings.Repeat("x", 20))
	w.MaxLength = 10
	_, changed, err := w.Changed(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestChangedError(t *testing.T) {
	w := fakeWatcher("x")
	w.read = func(ctx context.Context) (string, error) { return "", errors.New("boom") }
	_, _, err := w.Changed(context.Background())
	assert.Error(t, err)
}

func TestCapture(t *testing.T) {
	w := fakeWatcher("TODO: write docs")
	r, err := w.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TODO: write docs", r.TextData)
	assert.Equal(t, "true", r.Metadata["changed"])

	r, err = w.Capture(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.TextData)
	assert.Equal(t, "false", r.Metadata["changed"])
}

func TestRunReportsOnlyNewText(t *testing.T) {
	w := fakeWatcher("already there", "already there", "TASK: new")
	w.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(s string) { got <- s }) }()

	select {
	case s := <-got:
		assert.Equal(t, "TASK: new", s)
	case <-time.After(time.Second):
		t.Fatal("no text reported")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, got)
}

func TestAvailable(t *testing.T) {
	w := New(&platform.Platform{DisplayServer: platform.DisplayServerHyprland, HasWlPaste: true}, zap.NewNop())
	assert.True(t, w.Available())
	w = New(&platform.Platform{DisplayServer: platform.DisplayServerX11, HasWlPaste: true}, zap.NewNop())
	assert.False(t, w.Available())
}
