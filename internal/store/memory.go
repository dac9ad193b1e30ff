package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	*Broker

	mu     sync.RWMutex
	states map[string]UserState
	log    []UserState
	docs   map[string]map[string]*memDoc
	seq    int64
}

type memDoc struct {
	Document
	seq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Broker: NewBroker(),
		states: make(map[string]UserState),
		docs:   make(map[string]map[string]*memDoc),
	}
}

// PutState implements StateStore.
func (m *MemoryStore) PutState(ctx context.Context, s UserState) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.states[s.UserID] = s
	m.log = append(m.log, s)
	m.mu.Unlock()

	m.Publish(s)
	return nil
}

// GetState implements StateStore.
func (m *MemoryStore) GetState(ctx context.Context, userID string) (UserState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[userID]
	return s, ok, nil
}

// ListStates implements StateStore.
func (m *MemoryStore) ListStates(ctx context.Context, teamID string) ([]UserState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UserState, 0, len(m.states))
	for _, s := range m.states {
		if teamID == "" || s.TeamID == teamID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// History implements StateStore.
func (m *MemoryStore) History(ctx context.Context, userID string, limit int) ([]UserState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UserState
	for i := len(m.log) - 1; i >= 0; i-- {
		if m.log[i].UserID != userID {
			continue
		}
		out = append(out, m.log[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Add implements DocumentStore.
func (m *MemoryStore) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	id := uuid.NewString()
	if err := m.Set(ctx, collection, id, doc, false); err != nil {
		return "", err
	}
	return id, nil
}

// Set implements DocumentStore.
func (m *MemoryStore) Set(ctx context.Context, collection, id string, doc Doc, merge bool) error {
	data, err := normalize(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[collection]
	if coll == nil {
		coll = make(map[string]*memDoc)
		m.docs[collection] = coll
	}

	now := time.Now()
	if existing, ok := coll[id]; ok {
		if merge {
			data = merged(existing.Data, data)
		}
		existing.Data = data
		existing.UpdatedAt = now
		return nil
	}

	m.seq++
	coll[id] = &memDoc{
		Document: Document{
			ID:         id,
			Collection: collection,
			Data:       data,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		seq: m.seq,
	}
	return nil
}

// Get implements DocumentStore.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := d.Document
	out.Data = merged(nil, d.Data)
	return &out, nil
}

// Update implements DocumentStore.
func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	data, err := normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	d.Data = merged(d.Data, data)
	d.UpdatedAt = time.Now()
	return nil
}

// Query implements DocumentStore.
func (m *MemoryStore) Query(ctx context.Context, collection string, where Doc, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*memDoc
	for _, d := range m.docs[collection] {
		if matches(d.Data, where) {
			hits = append(hits, d)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq > hits[j].seq })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Document, len(hits))
	for i, d := range hits {
		out[i] = d.Document
		out[i].Data = merged(nil, d.Data)
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
