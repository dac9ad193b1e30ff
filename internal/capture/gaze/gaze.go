// Package gaze provides a coarse "is the user looking at the screen" estimate.
//
// Real face detection needs a camera pipeline that is out of reach for a pure
// Go daemon, so estimates come from a Source: the Static source (what the API
// server uses) or any external detector that reports a face bounding box,
// which FromFace turns into an estimate.
package gaze

import (
	"context"
	"math"
)

// FocusOffset is the largest horizontal offset of the face center from the
// frame center, as a fraction of half the frame width, that still counts as
// focused.
const FocusOffset = 0.3

// Gaze is one estimate.
type Gaze struct {
	Focused    bool
	Confidence float64
}

// Rect is a face bounding box in pixels.
type Rect struct {
	X, Y, W, H int
}

// Source produces gaze estimates.
type Source interface {
	Estimate(ctx context.Context) (Gaze, error)
}

// Static always reports the same estimate.
type Static struct {
	Gaze Gaze
}

// NewStatic returns the default assumption when no camera is available:
// focused with 0.8 confidence.
func NewStatic() *Static {
	return &Static{Gaze: Gaze{Focused: true, Confidence: 0.8}}
}

// Estimate returns the fixed estimate.
func (s *Static) Estimate(ctx context.Context) (Gaze, error) {
	return s.Gaze, nil
}

// FromFace derives an estimate from the first detected face. A nil face
// means nobody is in frame. Only the horizontal position matters.
func FromFace(frameW, frameH int, face *Rect) Gaze {
	if face == nil || frameW < 2 || frameH <= 0 {
		return Gaze{Focused: false, Confidence: 0}
	}

	frameCX := frameW / 2
	faceCX := face.X + face.W/2
	offset := math.Abs(float64(faceCX-frameCX)) / float64(frameCX)

	return Gaze{
		Focused:    offset < FocusOffset,
		Confidence: math.Max(0, 1-offset),
	}
}
