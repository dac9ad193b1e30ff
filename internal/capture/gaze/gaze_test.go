package gaze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	g, err := NewStatic().Estimate(context.Background())
	require.NoError(t, err)
	assert.True(t, g.Focused)
	assert.Equal(t, 0.8, g.Confidence)
}

func TestFromFaceCentered(t *testing.T) {
	g := FromFace(640, 480, &Rect{X: 270, Y: 190, W: 100, H: 100})
	assert.True(t, g.Focused)
	assert.InDelta(t, 1.0, g.Confidence, 1e-9)
}

func TestFromFaceOffCenter(t *testing.T) {
	// face center x = 600: offset = 280/320
	g := FromFace(640, 480, &Rect{X: 550, Y: 190, W: 100, H: 100})
	assert.False(t, g.Focused)
	assert.InDelta(t, 1-0.875, g.Confidence, 1e-9)
}

func TestFromFaceBoundary(t *testing.T) {
	tests := []struct {
		name       string
		face       Rect
		focused    bool
		confidence float64
	}{
		// center x = 416, offset 96/320 = 0.3 exactly
		{"at threshold", Rect{X: 366, Y: 0, W: 100, H: 100}, false, 0.7},
		// center x = 415, offset 95/320
		{"just inside", Rect{X: 365, Y: 0, W: 100, H: 100}, true, 1 - 95.0/320},
		// center x = 224, offset 96/320 on the left
		{"left threshold", Rect{X: 174, Y: 300, W: 100, H: 100}, false, 0.7},
		// vertical position is ignored
		{"low in frame", Rect{X: 270, Y: 380, W: 100, H: 100}, true, 1},
		// odd width rounds the face center down
		{"odd width", Rect{X: 270, Y: 0, W: 101, H: 101}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := FromFace(640, 480, &tt.face)
			assert.Equal(t, tt.focused, g.Focused)
			assert.InDelta(t, tt.confidence, g.Confidence, 1e-9)
		})
	}
}

func TestFromFaceNoFace(t *testing.T) {
	g := FromFace(640, 480, nil)
	assert.False(t, g.Focused)
	assert.Zero(t, g.Confidence)

	g = FromFace(0, 0, &Rect{})
	assert.False(t, g.Focused)
}
