package cognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SignalSource gathers one Signals snapshot.
type SignalSource interface {
	Gather(ctx context.Context) (Signals, error)
}

// SignalSourceFunc adapts a function to SignalSource.
type SignalSourceFunc func(ctx context.Context) (Signals, error)

// Gather calls f.
func (f SignalSourceFunc) Gather(ctx context.Context) (Signals, error) {
	return f(ctx)
}

// PublishFunc receives a state whenever it changes.
type PublishFunc func(ctx context.Context, state State, at time.Time) error

// Sensor polls a SignalSource and publishes state changes.
type Sensor struct {
	source   SignalSource
	publish  PublishFunc
	interval time.Duration
	logger   *zap.Logger

	mu         sync.RWMutex
	thresholds Thresholds
	current    State
	published  bool
	lastSignal Signals
}

// NewSensor creates a Sensor. interval <= 0 selects 3 seconds.
func NewSensor(source SignalSource, publish PublishFunc, interval time.Duration, logger *zap.Logger) *Sensor {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Sensor{
		source:     source,
		publish:    publish,
		interval:   interval,
		logger:     logger.Named("sensor"),
		thresholds: DefaultThresholds(),
		current:    StateIdle,
	}
}

// SetThresholds replaces the classifier cut-offs. Safe to call while Run
// is active.
func (s *Sensor) SetThresholds(t Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
}

// Thresholds returns the active cut-offs.
func (s *Sensor) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Current returns the last published state.
func (s *Sensor) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastSignals returns the signals of the most recent poll.
func (s *Sensor) LastSignals() Signals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSignal
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (s *Sensor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sensor started", zap.Duration("interval", s.interval))

	s.pollAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sensor stopped")
			return nil
		case <-ticker.C:
			s.pollAndLog(ctx)
		}
	}
}

func (s *Sensor) pollAndLog(ctx context.Context) {
	if _, _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("poll failed", zap.Error(err))
	}
}

// Poll runs a single gather/classify/publish cycle. It reports the
// classified state and whether it was published. A failed publish leaves the
// previous state in place so the change is retried on the next poll.
func (s *Sensor) Poll(ctx context.Context) (State, bool, error) {
	signals, err := s.source.Gather(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to gather signals: %w", err)
	}

	s.mu.Lock()
	s.lastSignal = signals
	state := Classify(signals, s.thresholds)
	changed := !s.published || state != s.current
	s.mu.Unlock()

	if !changed {
		return state, false, nil
	}

	if err := s.publish(ctx, state, time.Now()); err != nil {
		return state, false, fmt.Errorf("failed to publish state: %w", err)
	}

	s.mu.Lock()
	prev := s.current
	s.current = state
	s.published = true
	s.mu.Unlock()

	s.logger.Debug("state changed",
		zap.String("from", prev.String()),
		zap.String("to", state.String()))
	return state, true, nil
}
