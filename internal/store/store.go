// Package store holds the latest cognitive state per user plus the loosely
// typed documents the feature modules exchange.
//
// Two kinds of data live here:
// - user states: one "latest" row per user, every write also appended to a
//   log, with push notification to subscribers through a Broker
// - documents: schemaless JSON objects grouped in named collections (tasks,
//   captured_intents, ab_tests, ...), queried by equality filters
//
// SQLiteStore is the durable implementation, MemoryStore backs tests and
// --memory runs, and Mirrored pushes state writes to a remote database.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
)

// ErrNotFound is returned when a document or user does not exist.
var ErrNotFound = errors.New("not found")

// Collection names shared across feature modules.
const (
	CollectionTasks              = "tasks"
	CollectionCapturedIntents    = "captured_intents"
	CollectionABTests            = "ab_tests"
	CollectionBiometricData      = "biometric_data"
	CollectionHarmonizerEvents   = "harmonizer_events"
	CollectionProjectSonars      = "project_sonars"
	CollectionSonarNotifications = "sonar_notifications"
	CollectionUserSecrets        = "user_secrets"
	CollectionPendingMessages    = "pending_messages"
	CollectionOrbEvents          = "orb_events"
	CollectionGhostProfiles      = "ghost_profiles"
)

// UserState is the latest known state of one user.
type UserState struct {
	UserID    string          `json:"user_id"`
	TeamID    string          `json:"team_id"`
	State     cognition.State `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
	Simulated bool            `json:"simulated,omitempty"`
}

// Doc is a schemaless JSON object.
type Doc map[string]any

// String returns the value at key as a string, or "".
func (d Doc) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the value at key as a float64, or 0.
func (d Doc) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Document is a stored Doc with its identity.
type Document struct {
	ID         string
	Collection string
	Data       Doc
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StateStore persists user states and notifies subscribers.
type StateStore interface {
	// PutState stores s as the user's latest state and appends it to the log.
	PutState(ctx context.Context, s UserState) error
	// GetState returns the latest state of a user.
	GetState(ctx context.Context, userID string) (UserState, bool, error)
	// ListStates returns the latest state of every user in a team, or of
	// every user when teamID is empty.
	ListStates(ctx context.Context, teamID string) ([]UserState, error)
	// History returns up to limit logged states of a user, newest first.
	History(ctx context.Context, userID string, limit int) ([]UserState, error)
	// Subscribe streams every subsequent write for teamID ("" for all).
	Subscribe(teamID string) (<-chan UserState, func())
}

// DocumentStore persists schemaless documents.
type DocumentStore interface {
	// Add stores doc under a new random id.
	Add(ctx context.Context, collection string, doc Doc) (string, error)
	// Set stores doc under id, merging into an existing doc when merge is set.
	Set(ctx context.Context, collection, id string, doc Doc, merge bool) error
	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Update merges fields into an existing document or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Doc) error
	// Query returns documents whose fields equal every entry in where,
	// newest first. limit <= 0 means no limit.
	Query(ctx context.Context, collection string, where Doc, limit int) ([]Document, error)
}

// Store is the full persistence surface.
type Store interface {
	StateStore
	DocumentStore
	Close() error
}

// normalize round-trips doc through JSON so every implementation hands back
// the same types (float64 numbers, []any slices, map[string]any objects).
func normalize(doc Doc) (Doc, error) {
	if doc == nil {
		return Doc{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out Doc
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

// matches reports whether doc has every field in where with an equal JSON
// encoding.
func matches(doc, where Doc) bool {
	for k, want := range where {
		got, ok := doc[k]
		if !ok {
			return false
		}
		a, errA := json.Marshal(got)
		b, errB := json.Marshal(want)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

func merged(base, fields Doc) Doc {
	out := make(Doc, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
