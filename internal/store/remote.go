package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/breaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Remote mirrors user states to a Firebase Realtime Database through its
// REST API, under team_states/{team}/user_states/{user}.
type Remote struct {
	baseURL    string
	authKey    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewRemote creates a mirror client. authKey may be empty for open databases.
func NewRemote(baseURL, authKey string, logger *zap.Logger) *Remote {
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authKey:    authKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cb:         breaker.New("firebase", logger),
	}
}

func (r *Remote) stateURL(s UserState) string {
	u := fmt.Sprintf("%s/team_states/%s/user_states/%s.json",
		r.baseURL, url.PathEscape(s.TeamID), url.PathEscape(s.UserID))
	if r.authKey != "" {
		u += "?auth=" + url.QueryEscape(r.authKey)
	}
	return u
}

// PutState writes s to the remote database.
func (r *Remote) PutState(ctx context.Context, s UserState) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = breaker.Do(r.cb, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.stateURL(s), bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return struct{}{}, &breaker.StatusError{Service: "firebase", Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		return struct{}{}, nil
	})
	return err
}

// mirrorQueue is how many state writes may wait for the remote.
const mirrorQueue = 64

// Mirrored is a Store whose state writes are also pushed to a Remote.
// Pushes run in the background in write order; remote failures are logged,
// never returned. The local store stays the source of truth.
type Mirrored struct {
	Store
	remote *Remote
	logger *zap.Logger

	queue  chan UserState
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMirrored wraps local with a remote mirror. Close stops the mirror and
// closes local.
func NewMirrored(local Store, remote *Remote, logger *zap.Logger) *Mirrored {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirrored{
		Store:  local,
		remote: remote,
		logger: logger.Named("mirror"),
		queue:  make(chan UserState, mirrorQueue),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// PutState writes locally, then queues the write for the remote.
func (m *Mirrored) PutState(ctx context.Context, s UserState) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	if err := m.Store.PutState(ctx, s); err != nil {
		return err
	}
	select {
	case m.queue <- s:
	default:
		m.logger.Warn("remote mirror queue full, dropping state",
			zap.String("user", s.UserID))
	}
	return nil
}

func (m *Mirrored) run() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case s := <-m.queue:
			if err := m.remote.PutState(m.ctx, s); err != nil {
				m.logger.Warn("remote mirror failed",
					zap.String("user", s.UserID),
					zap.Error(err))
			}
		}
	}
}

// Close stops the mirror, dropping queued writes, and closes the local store.
func (m *Mirrored) Close() error {
	m.once.Do(func() {
		m.cancel()
		<-m.done
	})
	return m.Store.Close()
}
