package intent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultAnalyzeInterval is how often buffered speech is analysed.
	DefaultAnalyzeInterval = 5 * time.Second

	bufferSize     = 20
	analyzeWindow  = 5
	minBuffered    = 2
	minTranscript  = 6
	maxPending     = 10
	statusPending  = "pending"
	statusTasked   = "converted_to_task"
	eventCaptured  = "intent_captured"
	taskAssignee   = "canvas"
	taskSource     = "passive_intent"
	defaultUrgency = "low"
)

// Caster buffers transcriptions for one user and stores the intents found
// in them.
type Caster struct {
	store    store.DocumentStore
	detector *Detector
	userID   string
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	buffer []string
	seen   map[string]bool

	// OnCapture is called for every newly stored intent.
	OnCapture func(Intent)
}

// NewCaster creates a caster for userID.
func NewCaster(st store.DocumentStore, d *Detector, userID string, logger *zap.Logger) *Caster {
	return &Caster{
		store:    st,
		detector: d,
		userID:   userID,
		interval: DefaultAnalyzeInterval,
		logger:   logger.Named("intent"),
		seen:     make(map[string]bool),
	}
}

// SetInterval overrides the analysis interval.
func (c *Caster) SetInterval(d time.Duration) {
	c.interval = d
}

// AddTranscription buffers text. Fragments of 5 characters or fewer are
// noise and are dropped.
func (c *Caster) AddTranscription(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minTranscript {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(c.buffer, text)
	if len(c.buffer) > bufferSize {
		c.buffer = c.buffer[len(c.buffer)-bufferSize:]
	}
	return true
}

func (c *Caster) recent() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) < minBuffered {
		return "", false
	}
	start := max(0, len(c.buffer)-analyzeWindow)
	return strings.Join(c.buffer[start:], " "), true
}

// Analyze checks the recent transcriptions and stores a new intent if one is
// found. It returns the stored intent, or nil.
func (c *Caster) Analyze(ctx context.Context) (*Intent, error) {
	text, ok := c.recent()
	if !ok {
		return nil, nil
	}
	in, err := c.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to detect intent: %w", err)
	}
	if in == nil {
		return nil, nil
	}
	stored, err := c.Capture(ctx, *in)
	if err != nil || !stored {
		return nil, err
	}
	return in, nil
}

// Capture stores in unless an intent with the same signature was already
// captured. It reports whether it stored anything.
func (c *Caster) Capture(ctx context.Context, in Intent) (bool, error) {
	sig := in.Signature()
	c.mu.Lock()
	if c.seen[sig] {
		c.mu.Unlock()
		return false, nil
	}
	c.seen[sig] = true
	c.mu.Unlock()

	if in.Urgency == "" {
		in.Urgency = defaultUrgency
	}
	now := time.Now().UTC()

	if _, err := c.store.Add(ctx, store.CollectionOrbEvents, store.Doc{
		"user_id":   c.userID,
		"event":     eventCaptured,
		"timestamp": now,
	}); err != nil {
		c.logger.Warn("failed to record orb event", zap.Error(err))
	}

	id, err := c.store.Add(ctx, store.CollectionCapturedIntents, store.Doc{
		"user_id":    c.userID,
		"type":       in.Type,
		"text":       in.Text,
		"task":       in.Task,
		"urgency":    in.Urgency,
		"confidence": in.Confidence,
		"status":     statusPending,
		"signature":  sig,
		"timestamp":  now,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.seen, sig)
		c.mu.Unlock()
		return false, fmt.Errorf("failed to store intent: %w", err)
	}

	in.ID = id
	in.UserID = c.userID
	in.Status = statusPending
	c.logger.Info("intent captured",
		zap.String("type", in.Type),
		zap.String("signature", sig))
	if c.OnCapture != nil {
		c.OnCapture(in)
	}
	return true, nil
}

// Run analyses the buffer every interval until ctx is cancelled.
func (c *Caster) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Analyze(ctx); err != nil {
				c.logger.Debug("analysis failed", zap.Error(err))
			}
		}
	}
}

// Pending returns up to 10 pending intents of userID, newest first.
func Pending(ctx context.Context, st store.DocumentStore, userID string) ([]Intent, error) {
	docs, err := st.Query(ctx, store.CollectionCapturedIntents, store.Doc{
		"user_id": userID,
		"status":  statusPending,
	}, maxPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}

	out := make([]Intent, len(docs))
	for i, d := range docs {
		out[i] = fromDoc(d)
	}
	return out, nil
}

// ConvertToTask turns an intent into a canvas task and returns the task id.
func ConvertToTask(ctx context.Context, st store.DocumentStore, intentID string) (string, error) {
	d, err := st.Get(ctx, store.CollectionCapturedIntents, intentID)
	if err != nil {
		return "", fmt.Errorf("failed to load intent: %w", err)
	}
	in := fromDoc(*d)

	desc := in.Task
	if desc == "" {
		desc = in.Text
	}
	kind := in.Type
	if kind == "" {
		kind = "todo"
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = defaultUrgency
	}

	taskID, err := st.Add(ctx, store.CollectionTasks, store.Doc{
		"description": "[From Intent] " + desc,
		"type":        kind,
		"urgency":     urgency,
		"assigned_to": taskAssignee,
		"status":      statusPending,
		"created_by":  in.UserID,
		"source":      taskSource,
		"timestamp":   time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	if err := st.Update(ctx, store.CollectionCapturedIntents, intentID, store.Doc{"status": statusTasked}); err != nil {
		return taskID, fmt.Errorf("failed to mark intent converted: %w", err)
	}
	return taskID, nil
}

func fromDoc(d store.Document) Intent {
	return Intent{
		ID:         d.ID,
		UserID:     d.Data.String("user_id"),
		Type:       d.Data.String("type"),
		Text:       d.Data.String("text"),
		Task:       d.Data.String("task"),
		Urgency:    d.Data.String("urgency"),
		Confidence: d.Data.String("confidence"),
		Status:     d.Data.String("status"),
	}
}
