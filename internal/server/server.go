// Package server exposes cognitive states over HTTP and WebSocket.
//
// Routes:
//
//	GET  /api/health             liveness
//	GET  /api/states             every known state plus the monitored users
//	GET  /api/states/{user}      one state, UNKNOWN when never seen
//	POST /api/start/{user}       start a sensor for user
//	POST /api/stop/{user}        stop it and record OFFLINE
//	GET  /ws/{user}              state_update push stream
//	GET  /                       dashboard
//
// plus the feature endpoints for tasks, intents, A/B tests, sonars, team
// summaries and biometric ingestion. Everything under /api/ is rate limited
// per client IP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/harmonizer"
	"github.com/Atharva-Kanherkar/echo/internal/market"
	"github.com/Atharva-Kanherkar/echo/internal/sonar"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"go.uber.org/zap"
)

// SensorFactory returns the signal source of a user's sensor.
type SensorFactory func(userID string) (cognition.SignalSource, error)

// Options configures a Server. Store is required; feature endpoints whose
// dependency is nil answer 503.
type Options struct {
	Store  store.Store
	TeamID string

	Sensors        SensorFactory
	SensorInterval time.Duration
	Thresholds     cognition.Thresholds

	Canvas     *workspace.Canvas
	Market     *market.Validator
	Sonars     func(userID string) *sonar.Manager
	Harmonizer harmonizer.Thresholds

	RateLimit int // requests per second per client, 0 disables limiting
	RateBurst int

	// SimulateTeam fills in demo teammates every SimulateInterval.
	SimulateTeam     bool
	SimulateInterval time.Duration
}

// Server is the API server.
type Server struct {
	opts    Options
	logger  *zap.Logger
	mux     *http.ServeMux
	limiter *rateLimiter

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	sensors map[string]*monitor
}

// monitor is a running sensor.
type monitor struct {
	sensor *cognition.Sensor
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a server. Call Close to stop its sensors and background jobs.
func New(opts Options, logger *zap.Logger) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server needs a store")
	}
	if opts.SensorInterval <= 0 {
		opts.SensorInterval = 3 * time.Second
	}
	if opts.Thresholds == (cognition.Thresholds{}) {
		opts.Thresholds = cognition.DefaultThresholds()
	}
	if opts.Harmonizer == (harmonizer.Thresholds{}) {
		opts.Harmonizer = harmonizer.DefaultThresholds()
	}
	if opts.SimulateInterval <= 0 {
		opts.SimulateInterval = DefaultSimulateInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		logger:  logger.Named("server"),
		mux:     http.NewServeMux(),
		ctx:     ctx,
		cancel:  cancel,
		sensors: make(map[string]*monitor),
	}
	if opts.RateLimit > 0 {
		rl, err := newRateLimiter(opts.RateLimit, opts.RateBurst)
		if err != nil {
			cancel()
			return nil, err
		}
		s.limiter = rl
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/states", s.handleStates)
	s.mux.HandleFunc("GET /api/states/{user}", s.handleState)
	s.mux.HandleFunc("POST /api/start/{user}", s.handleStart)
	s.mux.HandleFunc("POST /api/stop/{user}", s.handleStop)
	s.mux.HandleFunc("GET /api/team/{team}", s.handleTeam)

	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/intents/{user}", s.handleIntents)
	s.mux.HandleFunc("POST /api/intents/{id}/convert", s.handleConvertIntent)
	s.mux.HandleFunc("POST /api/abtests", s.handleCreateABTest)
	s.mux.HandleFunc("GET /api/abtests/{id}", s.handleABTestResults)
	s.mux.HandleFunc("POST /api/sonars", s.handleDeploySonar)
	s.mux.HandleFunc("GET /api/sonars/{id}", s.handleSonarStatus)
	s.mux.HandleFunc("POST /api/biometrics/{user}", s.handleBiometrics)

	s.mux.HandleFunc("GET /ws/{user}", s.handleWS)
	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
}

// Handler returns the root handler with CORS and rate limiting applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.middleware(h)
	}
	return withCORS(h)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and stops every sensor.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.SimulateTeam {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.simulate(s.ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// WebSocket connections are hijacked and ignored by Shutdown; Close
	// ends them through the server context.
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	<-errCh
	s.logger.Info("api stopped")
	return nil
}

// Close stops every sensor, the simulator, open WebSocket streams and the
// rate limiter.
func (s *Server) Close() {
	s.cancel()

	s.mu.Lock()
	running := make([]*monitor, 0, len(s.sensors))
	for user, m := range s.sensors {
		running = append(running, m)
		delete(s.sensors, user)
	}
	s.mu.Unlock()

	for _, m := range running {
		m.cancel()
		<-m.done
	}
	s.wg.Wait()
	if s.limiter != nil {
		s.limiter.close()
	}
}

// Monitoring returns the users with a running sensor, sorted.
func (s *Server) Monitoring() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sensors))
	for user := range s.sensors {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}

func (s *Server) monitored(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sensors[userID]
	return ok
}

// StartSensor starts monitoring userID. It reports false when a sensor is
// already running.
func (s *Server) StartSensor(userID string) (bool, error) {
	if s.opts.Sensors == nil {
		return false, errors.New("sensing is not available on this server")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[userID]; ok {
		return false, nil
	}
	if s.ctx.Err() != nil {
		return false, errors.New("server is shutting down")
	}

	source, err := s.opts.Sensors(userID)
	if err != nil {
		return false, fmt.Errorf("failed to create sensor: %w", err)
	}
	publish := func(ctx context.Context, state cognition.State, at time.Time) error {
		return s.opts.Store.PutState(ctx, store.UserState{
			UserID:    userID,
			TeamID:    s.opts.TeamID,
			State:     state,
			Timestamp: at.UTC(),
		})
	}
	sensor := cognition.NewSensor(source, publish, s.opts.SensorInterval, s.logger.With(zap.String("user", userID)))
	sensor.SetThresholds(s.opts.Thresholds)

	ctx, cancel := context.WithCancel(s.ctx)
	m := &monitor{sensor: sensor, cancel: cancel, done: make(chan struct{})}
	s.sensors[userID] = m
	go func() {
		defer close(m.done)
		sensor.Run(ctx)
	}()

	s.logger.Info("monitoring started", zap.String("user", userID))
	return true, nil
}

// StopSensor stops monitoring userID and records it OFFLINE. It reports
// false when no sensor was running.
func (s *Server) StopSensor(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	m, ok := s.sensors[userID]
	delete(s.sensors, userID)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	m.cancel()
	<-m.done

	err := s.opts.Store.PutState(ctx, store.UserState{
		UserID:    userID,
		TeamID:    s.opts.TeamID,
		State:     cognition.StateOffline,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return true, fmt.Errorf("failed to record offline state: %w", err)
	}
	s.logger.Info("monitoring stopped", zap.String("user", userID))
	return true, nil
}

// SetThresholds applies new classifier thresholds to running and future
// sensors.
func (s *Server) SetThresholds(t cognition.Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Thresholds = t
	for _, m := range s.sensors {
		m.sensor.SetThresholds(t)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
