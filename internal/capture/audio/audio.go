// Package audio samples the microphone for loudness spikes and speech.
//
// Uses PipeWire's pw-record, falling back to PulseAudio's parecord and ALSA's
// arecord. This is OPT-IN only - it must be explicitly enabled in config.
//
// Two consumers read from here:
// - the cognitive sensor takes a 100ms sample every poll and feeds its RMS
//   into a SpikeDetector (a sudden shout or desk slam reads as frustration)
// - the intent caster records longer clips and sends them for transcription
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
)

// Capturer records short mono 16-bit clips.
type Capturer struct {
	platform *platform.Platform

	// Duration is how long Capture records (default 100ms)
	Duration time.Duration

	// SampleRate is the audio sample rate
	SampleRate int

	// Enabled must be explicitly set to true (opt-in)
	Enabled bool

	// record is swappable for tests
	record func(ctx context.Context, d time.Duration) ([]byte, error)
}

// New creates a new audio Capturer. Audio is disabled by default.
func New(plat *platform.Platform) *Capturer {
	c := &Capturer{
		platform:   plat,
		Duration:   100 * time.Millisecond,
		SampleRate: 16000, // good for speech recognition
	}
	c.record = c.recordPCM
	return c
}

// Name returns the capturer identifier.
func (c *Capturer) Name() string {
	return "audio"
}

// Available checks if audio capture is possible.
func (c *Capturer) Available() bool {
	return c.Enabled && c.platform.CanRecordAudio()
}

// Capture records a clip of c.Duration and reports its loudness.
func (c *Capturer) Capture(ctx context.Context) (*capture.Result, error) {
	pcm, err := c.Record(ctx, c.Duration)
	if err != nil {
		return nil, err
	}

	result := capture.NewResult("audio")
	result.RawData = pcm
	result.SetMetadata("format", "s16le")
	result.SetMetadata("sample_rate", fmt.Sprintf("%d", c.SampleRate))
	result.SetMetadata("channels", "1")
	result.SetMetadata("rms", fmt.Sprintf("%.5f", RMS(pcm)))
	return result, nil
}

// Level records a clip of c.Duration and returns its RMS in [0, 1].
func (c *Capturer) Level(ctx context.Context) (float64, error) {
	pcm, err := c.Record(ctx, c.Duration)
	if err != nil {
		return 0, err
	}
	return RMS(pcm), nil
}

// Record captures d worth of raw s16le PCM.
func (c *Capturer) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	if !c.Enabled {
		return nil, fmt.Errorf("audio capture is disabled (privacy: must be explicitly enabled)")
	}
	return c.record(ctx, d)
}

// recordPCM runs the first available recorder for d, then kills it.
func (c *Capturer) recordPCM(ctx context.Context, d time.Duration) ([]byte, error) {
	rate := fmt.Sprintf("%d", c.SampleRate)

	var name string
	var args []string
	switch {
	case c.platform.HasPwRecord:
		name, args = "pw-record", []string{"--rate", rate, "--channels", "1", "--format", "s16", "-"}
	case c.platform.HasParecord:
		name, args = "parecord", []string{"--rate", rate, "--channels", "1", "--format", "s16le", "--raw"}
	case c.platform.HasArecord:
		name, args = "arecord", []string{"-q", "-r", rate, "-c", "1", "-f", "S16_LE", "-t", "raw"}
	default:
		return nil, fmt.Errorf("no audio capture tool available (need pw-record, parecord or arecord)")
	}

	recordCtx, cancel := context.WithTimeout(ctx, d+2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(recordCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	select {
	case <-time.After(d):
		cmd.Process.Kill()
	case <-ctx.Done():
		cmd.Process.Kill()
		cmd.Wait()
		return nil, ctx.Err()
	}
	cmd.Wait() // killed on purpose, exit status is meaningless

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no audio data captured (stderr: %s)", stderr.String())
	}
	return stdout.Bytes(), nil
}
