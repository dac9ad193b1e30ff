package intent

import (
	"context"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture/audio"
	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"go.uber.org/zap"
)

// DefaultChunk is the length of each recorded clip.
const DefaultChunk = 3 * time.Second

// Recorder records raw mono s16le PCM.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) ([]byte, error)
}

// Listener records the microphone in chunks and feeds speech to a Caster.
type Listener struct {
	recorder    Recorder
	transcriber llm.Transcriber
	caster      *Caster
	sampleRate  int
	chunk       time.Duration
	logger      *zap.Logger
}

// NewListener creates a listener recording at sampleRate.
func NewListener(r Recorder, t llm.Transcriber, c *Caster, sampleRate int, logger *zap.Logger) *Listener {
	return &Listener{
		recorder:    r,
		transcriber: t,
		caster:      c,
		sampleRate:  sampleRate,
		chunk:       DefaultChunk,
		logger:      logger.Named("listener"),
	}
}

// SetChunk overrides the clip length.
func (l *Listener) SetChunk(d time.Duration) {
	l.chunk = d
}

// Listen records one chunk and, when it holds speech, transcribes and
// buffers it. It returns the transcription, or "" when nothing was heard.
func (l *Listener) Listen(ctx context.Context) (string, error) {
	pcm, err := l.recorder.Record(ctx, l.chunk)
	if err != nil {
		return "", err
	}
	if !audio.IsSpeech(audio.RMS(pcm), audio.SpeechThreshold) {
		return "", nil
	}

	text, err := l.transcriber.Transcribe(ctx, audio.EncodeWAV(pcm, l.sampleRate))
	if err != nil {
		return "", err
	}
	if !l.caster.AddTranscription(text) {
		return "", nil
	}
	l.logger.Debug("heard", zap.String("text", text))
	return text, nil
}

// Run listens until ctx is cancelled. Failures back off for a second.
func (l *Listener) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if _, err := l.Listen(ctx); err != nil && ctx.Err() == nil {
			l.logger.Debug("listen failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	return nil
}
