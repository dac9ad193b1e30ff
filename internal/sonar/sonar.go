// Package sonar runs long problem-solving jobs in the background.
//
// A deployed sonar walks a problem through five model-driven phases
// (analyze, research, simulate, synthesize, scaffold). Every phase result
// is merged into the sonar's project_sonars document as it lands, so the
// status endpoint and `echo sonar status` can follow progress. The scaffold
// phase writes the proposed components and a SONAR_SOLUTION.md under the
// workspace directory.
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sonar statuses.
const (
	StatusDeployed  = "deployed"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Phase names, in execution order. Each phase result is stored under its
// name.
const (
	PhaseAnalyze    = "analyze"
	PhaseResearch   = "research"
	PhaseSimulate   = "simulate"
	PhaseSynthesize = "synthesize"
	PhaseScaffold   = "scaffold"
)

// Phases lists the phases in order.
var Phases = []string{PhaseAnalyze, PhaseResearch, PhaseSimulate, PhaseSynthesize, PhaseScaffold}

const systemPrompt = "You are a world-class systems architect. Respond only with JSON."

// Manager deploys sonars for one user.
type Manager struct {
	store  store.DocumentStore
	llm    llm.Completer
	userID string
	dir    string
	logger *zap.Logger
	now    func() time.Time

	wg sync.WaitGroup

	// OnComplete is called after a sonar finishes, successfully or not.
	OnComplete func(id, status string)
}

// NewManager creates a manager. Scaffolded files go under dir.
func NewManager(st store.DocumentStore, c llm.Completer, userID, dir string, logger *zap.Logger) *Manager {
	return &Manager{
		store:  st,
		llm:    c,
		userID: userID,
		dir:    dir,
		logger: logger.Named("sonar"),
		now:    time.Now,
	}
}

// Deploy stores a new sonar for problem and returns its id. It does not run
// it; see Start and Run.
func (m *Manager) Deploy(ctx context.Context, problem string, extra map[string]any) (string, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return "", fmt.Errorf("problem is empty")
	}
	if extra == nil {
		extra = map[string]any{}
	}

	id := uuid.NewString()
	err := m.store.Set(ctx, store.CollectionProjectSonars, id, store.Doc{
		"sonar_id":          id,
		"user_id":           m.userID,
		"problem":           problem,
		"context":           extra,
		"status":            StatusDeployed,
		"start_time":        m.now().UTC().Format(time.RFC3339),
		"simulations_run":   0,
		"papers_researched": 0,
	}, false)
	if err != nil {
		return "", fmt.Errorf("failed to store sonar: %w", err)
	}
	m.logger.Info("sonar deployed", zap.String("id", id), zap.String("problem", problem))
	return id, nil
}

// Start deploys a sonar and runs it in the background until it finishes or
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context, problem string, extra map[string]any) (string, error) {
	id, err := m.Deploy(ctx, problem, extra)
	if err != nil {
		return "", err
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Run(ctx, id); err != nil {
			m.logger.Warn("sonar failed", zap.String("id", id), zap.Error(err))
		}
	}()
	return id, nil
}

// Wait blocks until every sonar started by Start has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Run executes every phase of a deployed sonar in order. A failing phase
// marks the sonar failed and stops the run.
func (m *Manager) Run(ctx context.Context, id string) error {
	d, err := m.store.Get(ctx, store.CollectionProjectSonars, id)
	if err != nil {
		return fmt.Errorf("failed to load sonar: %w", err)
	}
	j := &job{id: id, problem: d.Data.String("problem"), results: map[string]map[string]any{}}
	if c, ok := d.Data["context"].(map[string]any); ok {
		j.context = c
	}

	for _, phase := range Phases {
		if err := m.update(ctx, id, store.Doc{"status": StatusRunning, "current_phase": phase}); err != nil {
			return err
		}
		m.logger.Debug("phase started", zap.String("id", id[:8]), zap.String("phase", phase))

		result, err := m.runPhase(ctx, phase, j)
		if err != nil {
			m.fail(id, phase, err)
			return fmt.Errorf("phase %s: %w", phase, err)
		}
		j.results[phase] = result

		fields := store.Doc{phase: result}
		switch phase {
		case PhaseResearch:
			fields["papers_researched"] = len(list(result, "papers"))
		case PhaseSimulate:
			fields["simulations_run"] = number(result, "total_runs")
		}
		if err := m.update(ctx, id, fields); err != nil {
			return err
		}
	}

	if err := m.update(ctx, id, store.Doc{
		"status":       StatusCompleted,
		"completed_at": m.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	if _, err := m.store.Add(ctx, store.CollectionSonarNotifications, store.Doc{
		"user_id":   m.userID,
		"sonar_id":  id,
		"problem":   j.problem,
		"status":    StatusCompleted,
		"timestamp": m.now().UTC().Format(time.RFC3339),
		"read":      false,
	}); err != nil {
		m.logger.Warn("failed to store notification", zap.Error(err))
	}

	m.logger.Info("sonar complete", zap.String("id", id))
	if m.OnComplete != nil {
		m.OnComplete(id, StatusCompleted)
	}
	return nil
}

type job struct {
	id      string
	problem string
	context map[string]any
	results map[string]map[string]any
}

func (m *Manager) runPhase(ctx context.Context, phase string, j *job) (map[string]any, error) {
	var prompt string
	switch phase {
	case PhaseAnalyze:
		prompt = fmt.Sprintf(analyzePrompt, j.problem, toJSON(j.context))
	case PhaseResearch:
		prompt = fmt.Sprintf(researchPrompt, j.problem, strings.Join(strs(j.results[PhaseAnalyze], "research_areas"), ", "))
	case PhaseSimulate:
		prompt = fmt.Sprintf(simulatePrompt, j.problem,
			toJSON(j.results[PhaseAnalyze]["potential_approaches"]),
			strings.Join(strs(j.results[PhaseAnalyze], "simulation_scenarios"), ", "))
	case PhaseSynthesize:
		prompt = fmt.Sprintf(synthesizePrompt, j.problem,
			toJSON(j.results[PhaseAnalyze]), toJSON(j.results[PhaseResearch]), toJSON(j.results[PhaseSimulate]))
	case PhaseScaffold:
		return m.scaffold(ctx, j)
	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}

	var out map[string]any
	if err := llm.ChatJSON(ctx, m.llm, systemPrompt, prompt, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) update(ctx context.Context, id string, fields store.Doc) error {
	if err := m.store.Set(ctx, store.CollectionProjectSonars, id, fields, true); err != nil {
		return fmt.Errorf("failed to update sonar: %w", err)
	}
	return nil
}

func (m *Manager) fail(id, phase string, cause error) {
	// The run context may already be cancelled; the failure is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.update(ctx, id, store.Doc{
		"status":        StatusFailed,
		"current_phase": phase,
		"error":         cause.Error(),
	}); err != nil {
		m.logger.Warn("failed to mark sonar failed", zap.Error(err))
	}
	if m.OnComplete != nil {
		m.OnComplete(id, StatusFailed)
	}
}

// Status returns the stored sonar document.
func (m *Manager) Status(ctx context.Context, id string) (store.Doc, error) {
	d, err := m.store.Get(ctx, store.CollectionProjectSonars, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sonar: %w", err)
	}
	return d.Data, nil
}

// List returns the user's sonars, newest first.
func (m *Manager) List(ctx context.Context) ([]store.Document, error) {
	docs, err := m.store.Query(ctx, store.CollectionProjectSonars, store.Doc{"user_id": m.userID}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list sonars: %w", err)
	}
	return docs, nil
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func list(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

func strs(m map[string]any, key string) []string {
	var out []string
	for _, v := range list(m, key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

func object(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	if v == nil {
		return map[string]any{}
	}
	return v
}

func text(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// scaffoldDir is the directory a sonar's files are written to.
func (m *Manager) scaffoldDir(id string) string {
	return filepath.Join(m.dir, "sonar_"+id[:8])
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
