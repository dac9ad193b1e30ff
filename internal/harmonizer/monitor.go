package harmonizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultFetchInterval is how often the wearable is read.
	DefaultFetchInterval = time.Minute
	// DefaultCheckInterval is how often the latest reading is analysed.
	DefaultCheckInterval = 30 * time.Second
)

// Record stores a reading for userID in biometric_data and returns its
// stress level.
func Record(ctx context.Context, st store.DocumentStore, userID string, r Reading, t Thresholds) (int, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	stress := StressLevel(r, t)
	_, err := st.Add(ctx, store.CollectionBiometricData, store.Doc{
		"user_id":       userID,
		"hrv":           r.HRV,
		"heart_rate":    r.HeartRate,
		"sleep_quality": r.SleepHours,
		"stress_level":  stress,
		"timestamp":     r.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store biometrics: %w", err)
	}
	return stress, nil
}

// Readings returns up to limit readings of userID, newest first.
func Readings(ctx context.Context, st store.DocumentStore, userID string, limit int) ([]Reading, error) {
	docs, err := st.Query(ctx, store.CollectionBiometricData, store.Doc{"user_id": userID}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query biometrics: %w", err)
	}
	out := make([]Reading, 0, len(docs))
	for _, d := range docs {
		r := Reading{
			HeartRate:  d.Data.Float("heart_rate"),
			HRV:        d.Data.Float("hrv"),
			SleepHours: d.Data.Float("sleep_quality"),
			Timestamp:  d.CreatedAt,
		}
		if ts, err := time.Parse(time.RFC3339Nano, d.Data.String("timestamp")); err == nil {
			r.Timestamp = ts
		}
		out = append(out, r)
	}
	return out, nil
}

// Latest returns the newest reading of userID.
func Latest(ctx context.Context, st store.DocumentStore, userID string) (Reading, bool, error) {
	rs, err := Readings(ctx, st, userID, 1)
	if err != nil || len(rs) == 0 {
		return Reading{}, false, err
	}
	return rs[0], true, nil
}

// Harmonizer watches one user's biometrics and cognitive state and emits
// recommendations as harmonizer_events.
type Harmonizer struct {
	store      store.Store
	userID     string
	thresholds Thresholds
	source     Source
	logger     *zap.Logger

	fetchEvery time.Duration
	checkEvery time.Duration

	mu       sync.Mutex
	lastKind string

	// OnRecommend is called for every newly emitted recommendation.
	OnRecommend func(Recommendation)
}

// New creates a harmonizer. source may be nil when readings arrive through
// Record instead.
func New(st store.Store, userID string, t Thresholds, source Source, logger *zap.Logger) *Harmonizer {
	return &Harmonizer{
		store:      st,
		userID:     userID,
		thresholds: t,
		source:     source,
		logger:     logger.Named("harmonizer"),
		fetchEvery: DefaultFetchInterval,
		checkEvery: DefaultCheckInterval,
	}
}

// SetIntervals overrides the fetch and check intervals.
func (h *Harmonizer) SetIntervals(fetch, check time.Duration) {
	h.fetchEvery = fetch
	h.checkEvery = check
}

// Fetch reads the source once and records the reading.
func (h *Harmonizer) Fetch(ctx context.Context) (Reading, error) {
	if h.source == nil {
		return Reading{}, fmt.Errorf("no biometric source configured")
	}
	r, err := h.source.Fetch(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to fetch biometrics: %w", err)
	}
	if _, err := Record(ctx, h.store, h.userID, r, h.thresholds); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// Check analyses the latest reading against the current cognitive state and
// stores a recommendation when one applies. A recommendation of the same
// kind as the previous one is not repeated.
func (h *Harmonizer) Check(ctx context.Context) (*Recommendation, error) {
	r, ok, err := Latest(ctx, h.store, h.userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	state := cognition.StateUnknown
	if s, found, err := h.store.GetState(ctx, h.userID); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	} else if found {
		state = s.State
	}

	rec := Analyze(r, StressLevel(r, h.thresholds), state, h.thresholds)

	h.mu.Lock()
	if rec == nil {
		h.lastKind = ""
		h.mu.Unlock()
		return nil, nil
	}
	if rec.Kind == h.lastKind {
		h.mu.Unlock()
		return nil, nil
	}
	h.lastKind = rec.Kind
	h.mu.Unlock()

	doc := store.Doc{
		"user_id":   h.userID,
		"type":      rec.EventType(),
		"message":   rec.Message,
		"status":    "pending",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if rec.Duration > 0 {
		doc["duration"] = rec.Duration
	}
	if len(rec.AlternativeTasks) > 0 {
		doc["alternative_tasks"] = rec.AlternativeTasks
	}
	if _, err := h.store.Add(ctx, store.CollectionHarmonizerEvents, doc); err != nil {
		return nil, fmt.Errorf("failed to store recommendation: %w", err)
	}

	h.logger.Info("recommendation",
		zap.String("type", rec.EventType()),
		zap.String("state", state.String()))
	if h.OnRecommend != nil {
		h.OnRecommend(*rec)
	}
	return rec, nil
}

// Summary builds today's summary from the stored readings.
func (h *Harmonizer) Summary(ctx context.Context, now time.Time) (Summary, error) {
	all, err := Readings(ctx, h.store, h.userID, 0)
	if err != nil {
		return Summary{}, err
	}
	y, m, d := now.Date()
	var today []Reading
	for _, r := range all {
		ry, rm, rd := r.Timestamp.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			today = append(today, r)
		}
	}

	state := cognition.StateUnknown
	if s, found, err := h.store.GetState(ctx, h.userID); err != nil {
		return Summary{}, fmt.Errorf("failed to load state: %w", err)
	} else if found {
		state = s.State
	}
	return DailySummary(h.userID, now, today, state, h.thresholds), nil
}

// Run fetches and checks on their intervals until ctx is cancelled.
func (h *Harmonizer) Run(ctx context.Context) error {
	fetch := time.NewTicker(h.fetchEvery)
	defer fetch.Stop()
	check := time.NewTicker(h.checkEvery)
	defer check.Stop()

	if h.source != nil {
		if _, err := h.Fetch(ctx); err != nil {
			h.logger.Warn("fetch failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fetch.C:
			if h.source == nil {
				continue
			}
			if _, err := h.Fetch(ctx); err != nil {
				h.logger.Warn("fetch failed", zap.Error(err))
			}
		case <-check.C:
			if _, err := h.Check(ctx); err != nil {
				h.logger.Warn("check failed", zap.Error(err))
			}
		}
	}
}
