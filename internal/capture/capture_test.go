package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name      string
	available bool
	err       error
	calls     int
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Available() bool { return f.available }

func (f *fakeSource) Capture(ctx context.Context) (*Result, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("no deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return NewResult(f.name).SetMetadata("app_class", "code"), nil
}

func TestProbe(t *testing.T) {
	window := &fakeSource{name: "window", available: true}
	audio := &fakeSource{name: "audio"}
	clip := &fakeSource{name: "clipboard", available: true, err: errors.New("xclip failed")}

	got := Probe(context.Background(), time.Second, window, audio, clip)
	require.Len(t, got, 3)

	assert.Equal(t, Status{Name: "window", Available: true, Metadata: map[string]string{"app_class": "code"}}, got[0])
	assert.Equal(t, Status{Name: "audio"}, got[1])
	assert.Zero(t, audio.calls, "unavailable sources are not read")
	assert.Equal(t, "xclip failed", got[2].Error)
}

func TestSetMetadataOnZeroResult(t *testing.T) {
	var r Result
	r.SetMetadata("k", "v")
	assert.Equal(t, "v", r.Metadata["k"])
}
