package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists states and documents in a single SQLite file.
//
// Layout:
//
//	user_states  latest state per user (primary key user_id)
//	state_log    every state write, append-only
//	documents    (collection, id) -> JSON
type SQLiteStore struct {
	*Broker
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{Broker: NewBroker(), db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_states (
		user_id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		state TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		simulated INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_user_states_team ON user_states(team_id);

	CREATE TABLE IF NOT EXISTS state_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		team_id TEXT NOT NULL,
		state TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		simulated INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_state_log_user ON state_log(user_id, id);

	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSON NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutState implements StateStore.
func (s *SQLiteStore) PutState(ctx context.Context, st UserState) error {
	if st.Timestamp.IsZero() {
		st.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := st.Timestamp.UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_states (user_id, team_id, state, timestamp, simulated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			team_id = excluded.team_id,
			state = excluded.state,
			timestamp = excluded.timestamp,
			simulated = excluded.simulated
	`, st.UserID, st.TeamID, string(st.State), ts, st.Simulated); err != nil {
		return fmt.Errorf("failed to upsert user state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_log (user_id, team_id, state, timestamp, simulated)
		VALUES (?, ?, ?, ?, ?)
	`, st.UserID, st.TeamID, string(st.State), ts, st.Simulated); err != nil {
		return fmt.Errorf("failed to append state log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}

	s.Publish(st)
	return nil
}

// GetState implements StateStore.
func (s *SQLiteStore) GetState(ctx context.Context, userID string) (UserState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, team_id, state, timestamp, simulated
		FROM user_states WHERE user_id = ?
	`, userID)

	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserState{}, false, nil
	}
	if err != nil {
		return UserState{}, false, fmt.Errorf("failed to read user state: %w", err)
	}
	return st, true, nil
}

// ListStates implements StateStore.
func (s *SQLiteStore) ListStates(ctx context.Context, teamID string) ([]UserState, error) {
	query := `SELECT user_id, team_id, state, timestamp, simulated FROM user_states`
	var args []any
	if teamID != "" {
		query += ` WHERE team_id = ?`
		args = append(args, teamID)
	}
	query += ` ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user states: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// History implements StateStore.
func (s *SQLiteStore) History(ctx context.Context, userID string, limit int) ([]UserState, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, team_id, state, timestamp, simulated
		FROM state_log WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read state log: %w", err)
	}
	defer rows.Close()
	return scanStates(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner) (UserState, error) {
	var st UserState
	var state string
	var ts int64
	if err := r.Scan(&st.UserID, &st.TeamID, &state, &ts, &st.Simulated); err != nil {
		return UserState{}, err
	}
	st.State = cognition.State(state)
	st.Timestamp = time.Unix(0, ts)
	return st, nil
}

func scanStates(rows *sql.Rows) ([]UserState, error) {
	var out []UserState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Add implements DocumentStore.
func (s *SQLiteStore) Add(ctx context.Context, collection string, doc Doc) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, doc, false); err != nil {
		return "", err
	}
	return id, nil
}

// Set implements DocumentStore.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, doc Doc, merge bool) error {
	data, err := normalize(doc)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if merge {
		existing, err := getDoc(ctx, tx, collection, id)
		switch {
		case err == nil:
			data = merged(existing.Data, data)
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, collection, id, string(encoded), now, now); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	return tx.Commit()
}

// Get implements DocumentStore.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDoc(ctx, s.db, collection, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q querier, collection, id string) (*Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, data, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?
	`, collection, id)

	d, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return d, nil
}

func scanDoc(r rowScanner) (*Document, error) {
	var d Document
	var data string
	var created, updated int64
	if err := r.Scan(&d.Collection, &d.ID, &data, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &d.Data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", d.Collection, d.ID, err)
	}
	d.CreatedAt = time.Unix(0, created)
	d.UpdatedAt = time.Unix(0, updated)
	return &d, nil
}

// Update implements DocumentStore.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return s.Set(ctx, collection, id, fields, true)
}

// Query implements DocumentStore. Filters are applied after decoding so they
// share equality semantics with MemoryStore.
func (s *SQLiteStore) Query(ctx context.Context, collection string, where Doc, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, id, data, created_at, updated_at
		FROM documents WHERE collection = ?
		ORDER BY created_at DESC, rowid DESC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		if !matches(d.Data, where) {
			continue
		}
		out = append(out, *d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
