package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/harmonizer"
	"github.com/Atharva-Kanherkar/echo/internal/intent"
	"github.com/Atharva-Kanherkar/echo/internal/market"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/team"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.opts.Store.ListStates(r.Context(), "")
	if err != nil {
		s.logger.Error("failed to list states", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list states")
		return
	}
	byUser := make(map[string]store.UserState, len(states))
	for _, st := range states {
		byUser[st.UserID] = st
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_states": byUser,
		"monitoring":  s.Monitoring(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	st, ok, err := s.opts.Store.GetState(r.Context(), user)
	if err != nil {
		s.logger.Error("failed to get state", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get state")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user_id": user, "state": cognition.StateUnknown})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	started, err := s.StartSensor(user)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	status := "started"
	if !started {
		status = "already_running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "user_id": user})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	stopped, err := s.StopSensor(r.Context(), user)
	if err != nil {
		s.logger.Error("failed to stop sensor", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop sensor")
		return
	}
	status := "stopped"
	if !stopped {
		status = "not_running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "user_id": user})
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("team")
	states, err := s.opts.Store.ListStates(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list team", zap.String("team", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list team")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": team.Summarize(id, states),
		"members": team.StateMap(states),
	})
}

type taskRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.opts.Canvas == nil {
		writeError(w, http.StatusServiceUnavailable, "canvas is not configured")
		return
	}
	var req taskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.opts.Canvas.SpawnTask(r.Context(), req.UserID, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id, "status": "pending"})
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	intents, err := intent.Pending(r.Context(), s.opts.Store, r.PathValue("user"))
	if err != nil {
		s.logger.Error("failed to list intents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list intents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

func (s *Server) handleConvertIntent(w http.ResponseWriter, r *http.Request) {
	taskID, err := intent.ConvertToTask(r.Context(), s.opts.Store, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "intent not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to convert intent", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to convert intent")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": taskID})
}

type abTestRequest struct {
	market.TestRequest
	DurationHours float64 `json:"duration_hours"`
}

func (s *Server) handleCreateABTest(w http.ResponseWriter, r *http.Request) {
	if s.opts.Market == nil {
		writeError(w, http.StatusServiceUnavailable, "market validation is not configured")
		return
	}
	var req abTestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DurationHours > 0 {
		req.Duration = time.Duration(req.DurationHours * float64(time.Hour))
	}
	id, err := s.opts.Market.CreateTest(r.Context(), req.TestRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"test_id": id, "status": market.StatusRunning})
}

func (s *Server) handleABTestResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Market == nil {
		writeError(w, http.StatusServiceUnavailable, "market validation is not configured")
		return
	}
	out, err := s.opts.Market.Results(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get test results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get test results")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type sonarRequest struct {
	UserID  string         `json:"user_id"`
	Problem string         `json:"problem"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleDeploySonar(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sonars == nil {
		writeError(w, http.StatusServiceUnavailable, "sonars are not configured")
		return
	}
	var req sonarRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := s.opts.Sonars(req.UserID)
	id, err := m.Deploy(r.Context(), req.Problem, req.Context)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the request.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := m.Run(s.ctx, id); err != nil {
			s.logger.Warn("sonar failed", zap.String("id", id), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"sonar_id": id, "status": "deployed"})
}

func (s *Server) handleSonarStatus(w http.ResponseWriter, r *http.Request) {
	d, err := s.opts.Store.Get(r.Context(), store.CollectionProjectSonars, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sonar not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get sonar", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get sonar")
		return
	}
	writeJSON(w, http.StatusOK, d.Data)
}

type biometricsRequest struct {
	HeartRate  float64 `json:"heart_rate"`
	HRV        float64 `json:"hrv"`
	SleepHours float64 `json:"sleep_quality"`
}

func (s *Server) handleBiometrics(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var req biometricsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading := harmonizer.Reading{
		HeartRate:  req.HeartRate,
		HRV:        req.HRV,
		SleepHours: req.SleepHours,
		Timestamp:  time.Now().UTC(),
	}
	stress, err := harmonizer.Record(r.Context(), s.opts.Store, user, reading, s.opts.Harmonizer)
	if err != nil {
		s.logger.Error("failed to record biometrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record biometrics")
		return
	}

	state := cognition.StateUnknown
	if st, ok, err := s.opts.Store.GetState(r.Context(), user); err == nil && ok {
		state = st.State
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        user,
		"stress_level":   stress,
		"recommendation": harmonizer.Analyze(reading, stress, state, s.opts.Harmonizer),
	})
}
