// Package daemon provides the Manager that runs ECHO on the user's machine.
//
// The Manager owns the local sensing stack and everything reacting to it:
// - input: evdev keyboard and cursor polling feed the activity tracker
// - window: the focused app feeds the classifier and the interruption guard
// - audio: opt-in; loudness spikes feed the classifier, speech feeds intents
// - surfaces: unix socket, state file and desktop notifications
// - jobs: message delivery, IDE worker, harmonizer, Socratic questions and
//   clipboard notes
//
// The sensor publishes to the store; every state write in the team is then
// forwarded to the local surfaces, so teammates' changes show up too.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/capture"
	"github.com/Atharva-Kanherkar/echo/internal/capture/audio"
	"github.com/Atharva-Kanherkar/echo/internal/capture/clipboard"
	"github.com/Atharva-Kanherkar/echo/internal/capture/gaze"
	"github.com/Atharva-Kanherkar/echo/internal/capture/input"
	"github.com/Atharva-Kanherkar/echo/internal/capture/window"
	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/config"
	"github.com/Atharva-Kanherkar/echo/internal/harmonizer"
	"github.com/Atharva-Kanherkar/echo/internal/intent"
	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/notify"
	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/Atharva-Kanherkar/echo/internal/sonar"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/Atharva-Kanherkar/echo/internal/team"
	"github.com/Atharva-Kanherkar/echo/internal/workspace"
	"go.uber.org/zap"
)

// SocketName is the unix socket file inside the data directory.
const SocketName = "echo.sock"

// Model is what the Manager needs from the language model.
type Model interface {
	llm.Completer
	llm.Transcriber
}

// Intervals defines how often the periodic jobs run.
type Intervals struct {
	Guard    time.Duration // interruption guard window check
	Socratic time.Duration
}

// DefaultIntervals returns sensible default intervals.
func DefaultIntervals() Intervals {
	return Intervals{
		Guard:    2 * time.Second,
		Socratic: 5 * time.Second,
	}
}

// Manager orchestrates sensing and the local features.
type Manager struct {
	cfg       *config.Config
	platform  *platform.Platform
	store     store.Store
	model     Model // nil without an API key
	notifier  notify.Notifier
	logger    *zap.Logger
	intervals Intervals

	// Sources
	tracker   *input.Tracker
	keyboard  *input.Keyboard
	mouse     *input.Mouse
	window    *window.Capturer
	audio     *audio.Capturer
	gaze      gaze.Source
	clipboard *clipboard.Watcher

	sensor    *cognition.Sensor
	socket    *notify.SocketServer
	stateFile *notify.StateFile
	team      *team.Manager
	canvas    *workspace.Canvas
	socratic  *workspace.SocraticTrigger

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	gatherMu sync.Mutex
	inputs   *input.Window
	spikes   *audio.SpikeDetector

	mu         sync.Mutex
	lastWindow window.Info
	warned     string // recipient of the last interruption warning
}

// NewManager creates a Manager for cfg.UserID. model may be nil.
func NewManager(cfg *config.Config, plat *platform.Platform, st store.Store, model Model, logger *zap.Logger) *Manager {
	logger = logger.Named("daemon")
	tracker := input.NewTracker()

	audioCapturer := audio.New(plat)
	audioCapturer.Enabled = cfg.Sensor.AudioEnabled

	m := &Manager{
		cfg:       cfg,
		platform:  plat,
		store:     st,
		model:     model,
		notifier:  notify.NewDesktop(),
		logger:    logger,
		intervals: DefaultIntervals(),
		tracker:   tracker,
		keyboard:  input.NewKeyboard(tracker, "", logger),
		mouse:     input.NewMouse(plat, tracker, logger),
		window:    window.New(plat),
		audio:     audioCapturer,
		gaze:      gaze.NewStatic(),
		clipboard: clipboard.New(plat, logger),
		socket:    notify.NewSocketServer(filepath.Join(cfg.DataDir, SocketName), logger),
		stateFile: notify.NewStateFile(cfg.DataDir),
		team:      team.NewManager(st, logger),
		canvas:    workspace.NewCanvas(st, logger),
		spikes:    audio.NewSpikeDetector(),
	}
	m.inputs = tracker.NewWindow()
	m.team.SetRecipient(cfg.UserID)
	m.team.OnDeliver = m.onMessage
	m.sensor = cognition.NewSensor(m, m.publish, cfg.SensorInterval(), logger)
	m.sensor.SetThresholds(Thresholds(cfg))
	if model != nil {
		m.socratic = workspace.NewSocraticTrigger(model, workspace.DefaultStuckAfter)
	}
	return m
}

// Thresholds converts the sensor section of cfg into classifier thresholds.
func Thresholds(cfg *config.Config) cognition.Thresholds {
	t := cognition.DefaultThresholds()
	t.ActivityThreshold = cfg.ActivityThreshold()
	if cfg.Sensor.FrustrationBackspace > 0 {
		t.FrustrationBackspace = cfg.Sensor.FrustrationBackspace
	}
	if cfg.Sensor.FlowCadence > 0 {
		t.FlowCadence = cfg.Sensor.FlowCadence
	}
	if cfg.Sensor.FlowBackspace > 0 {
		t.FlowBackspace = cfg.Sensor.FlowBackspace
	}
	if cfg.Sensor.FlowMouse > 0 {
		t.FlowMouse = cfg.Sensor.FlowMouse
	}
	return t
}

// SetNotifier replaces the desktop notifier.
func (m *Manager) SetNotifier(n notify.Notifier) {
	m.notifier = n
}

// SetIntervals overrides the periodic job intervals.
func (m *Manager) SetIntervals(i Intervals) {
	m.intervals = i
}

// Sensor returns the user's sensor.
func (m *Manager) Sensor() *cognition.Sensor {
	return m.sensor
}

// SocketPath returns the path local widgets connect to.
func (m *Manager) SocketPath() string {
	return filepath.Join(m.cfg.DataDir, SocketName)
}

// Probe reads the window, audio and clipboard sources once.
func (m *Manager) Probe(ctx context.Context) []capture.Status {
	return capture.Probe(ctx, 2*time.Second, m.window, m.audio, m.clipboard)
}

// Gather implements cognition.SignalSource from the local devices for the
// Manager's own sensor.
func (m *Manager) Gather(ctx context.Context) (cognition.Signals, error) {
	m.gatherMu.Lock()
	defer m.gatherMu.Unlock()
	return m.gather(ctx, m.inputs, m.spikes)
}

// NewSource returns another SignalSource over the local devices. It keeps
// its own input window and spike baseline, so several sensors can read the
// same devices.
func (m *Manager) NewSource() cognition.SignalSource {
	return &source{
		m:      m,
		inputs: m.tracker.NewWindow(),
		spikes: audio.NewSpikeDetector(),
	}
}

type source struct {
	m      *Manager
	inputs *input.Window
	spikes *audio.SpikeDetector
	mu     sync.Mutex
}

func (s *source) Gather(ctx context.Context) (cognition.Signals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.gather(ctx, s.inputs, s.spikes)
}

func (m *Manager) gather(ctx context.Context, inputs *input.Window, spikes *audio.SpikeDetector) (cognition.Signals, error) {
	snap := inputs.Snapshot(time.Now())
	sig := cognition.Signals{
		TypingCadence:      snap.TypingCadence,
		BackspaceFrequency: snap.BackspaceFrequency,
		MouseActivity:      snap.MouseActivity,
		IdleTime:           snap.IdleTime,
	}

	g, err := m.gaze.Estimate(ctx)
	if err != nil {
		return sig, fmt.Errorf("failed to estimate gaze: %w", err)
	}
	sig.GazeFocused = g.Focused
	sig.GazeConfidence = g.Confidence

	if m.audio.Available() {
		if rms, err := m.audio.Level(ctx); err == nil {
			sig.AudioSpike = spikes.Observe(rms)
		} else {
			m.logger.Debug("audio level failed", zap.Error(err))
		}
	}

	if info, ok := m.activeWindow(ctx); ok {
		sig.ActiveApp = info.App()
	}
	return sig, nil
}

func (m *Manager) activeWindow(ctx context.Context) (window.Info, bool) {
	if !m.window.Available() {
		return window.Info{}, false
	}
	info, err := m.window.Active(ctx)
	if err != nil {
		m.logger.Debug("active window failed", zap.Error(err))
		return window.Info{}, false
	}
	m.mu.Lock()
	m.lastWindow = info
	m.mu.Unlock()
	return info, true
}

func (m *Manager) publish(ctx context.Context, state cognition.State, at time.Time) error {
	return m.store.PutState(ctx, store.UserState{
		UserID:    m.cfg.UserID,
		TeamID:    m.cfg.TeamID,
		State:     state,
		Timestamp: at.UTC(),
	})
}

// StartInputs starts only the keyboard and mouse readers. The API server
// uses it so that sensors started over HTTP see local input.
func (m *Manager) StartInputs(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.startInputs()
}

func (m *Manager) startInputs() {
	if m.keyboard.Available() {
		m.goRun("keyboard", m.keyboard.Run)
		m.logger.Info("keyboard tracking enabled", zap.String("device", m.keyboard.Device()))
	} else {
		m.logger.Info("keyboard tracking unavailable (add user to 'input' group)")
	}
	if m.mouse.Available() {
		m.goRun("mouse", m.mouse.Run)
	}
}

// Start begins sensing and every local feature.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.logger.Info("starting",
		zap.String("user", m.cfg.UserID),
		zap.String("team", m.cfg.TeamID),
		zap.String("platform", m.platform.String()),
		zap.Strings("features", m.platform.SupportedFeatures()))

	for _, st := range m.Probe(m.ctx) {
		m.logger.Info("source",
			zap.String("name", st.Name),
			zap.Bool("available", st.Available),
			zap.String("error", st.Error))
	}

	m.startInputs()

	// Subscribe before the sensor's first write so it reaches the surfaces.
	changes, unsubscribe := m.store.Subscribe(m.cfg.TeamID)
	m.goRun("forward", func(ctx context.Context) error {
		defer unsubscribe()
		return m.forward(ctx, changes)
	})
	m.goRun("socket", m.socket.Serve)
	m.goRun("sensor", m.sensor.Run)
	m.goRun("delivery", m.team.Run)
	m.runLoop("guard", m.intervals.Guard, m.guard)

	if m.clipboard.Available() {
		m.goRun("clipboard", func(ctx context.Context) error {
			return m.clipboard.Run(ctx, func(text string) { m.onClipboard(ctx, text) })
		})
	}

	if h := m.harmonizer(); h != nil {
		m.goRun("harmonizer", h.Run)
	}

	if m.model == nil {
		m.logger.Info("no API key - IDE worker, Socratic questions and intents disabled")
		return
	}
	m.goRun("ide", m.IDEWorker().Run)
	m.runLoop("socratic", m.intervals.Socratic, m.askSocratic)

	if m.cfg.Sensor.IntentsEnabled && m.audio.Available() {
		caster := intent.NewCaster(m.store, intent.NewDetector(m.model), m.cfg.UserID, m.logger)
		caster.OnCapture = func(in intent.Intent) {
			m.notify("Intent captured", in.Task, notify.UrgencyLow)
		}
		listener := intent.NewListener(m.audio, m.model, caster, m.audio.SampleRate, m.logger)
		m.goRun("intents", caster.Run)
		m.goRun("listener", listener.Run)
	}
}

// Stop gracefully stops everything Start or StartInputs began.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.logger.Info("stopping")
	m.cancel()
	m.wg.Wait()
	m.logger.Info("stopped")
}

// goRun runs fn in its own goroutine until the manager stops. An error is
// logged and ends only that component.
func (m *Manager) goRun(name string, fn func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(m.ctx); err != nil && m.ctx.Err() == nil {
			m.logger.Warn("component failed", zap.String("component", name), zap.Error(err))
		}
	}()
}

// runLoop runs fn now and then every interval.
func (m *Manager) runLoop(name string, interval time.Duration, fn func(ctx context.Context) error) {
	m.goRun(name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				m.logger.Debug("loop error", zap.String("loop", name), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}

// forward pushes a state_update to the socket and the state file after
// every write in the team.
func (m *Manager) forward(ctx context.Context, changes <-chan store.UserState) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := m.pushUpdate(ctx); err != nil {
				m.logger.Warn("failed to push update", zap.Error(err))
			}
		}
	}
}

func (m *Manager) pushUpdate(ctx context.Context) error {
	states, err := m.store.ListStates(ctx, m.cfg.TeamID)
	if err != nil {
		return err
	}
	u := notify.NewStateUpdate(m.cfg.UserID, states)
	m.socket.Broadcast(u)
	return m.stateFile.Write(u)
}

// guard warns once when the focused window is a chat with a teammate in
// flow.
func (m *Manager) guard(ctx context.Context) error {
	info, ok := m.activeWindow(ctx)
	if !ok {
		return nil
	}
	return m.checkInterruption(ctx, info)
}

func (m *Manager) checkInterruption(ctx context.Context, info window.Info) error {
	recipient, interrupt, err := m.team.Check(ctx, info.App(), info.Title)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if !interrupt {
		m.warned = ""
		m.mu.Unlock()
		return nil
	}
	if recipient == m.warned {
		m.mu.Unlock()
		return nil
	}
	m.warned = recipient
	m.mu.Unlock()

	m.logger.Info("interruption guard", zap.String("recipient", recipient))
	m.notify("Hold on",
		fmt.Sprintf("%s is in deep focus. Queue the message with `echo team message %s ...` and it will be delivered when they surface.", recipient, recipient),
		notify.UrgencyCritical)
	return nil
}

// askSocratic asks a question about the latest file in the workspace once
// the user has been stuck long enough.
func (m *Manager) askSocratic(ctx context.Context) error {
	file, err := workspace.LatestFile(m.cfg.Workspace.Dir)
	if err != nil {
		file = nil
	}
	q, ok, err := m.socratic.Check(ctx, m.sensor.Current(), time.Now(), file)
	if err != nil || !ok {
		return err
	}
	m.logger.Info("socratic question", zap.String("file", file.Path), zap.String("question", q))
	m.notify(filepath.Base(file.Path), q, notify.UrgencyNormal)
	return nil
}

// RunDelivery delivers the user's queued messages until ctx is cancelled.
// Start runs it; callers that only use StartInputs run it themselves.
func (m *Manager) RunDelivery(ctx context.Context) error {
	return m.team.Run(ctx)
}

// IDEWorker returns a worker for the user's IDE tasks that notifies when a
// file is written. It needs a model.
func (m *Manager) IDEWorker() *workspace.IDEWorker {
	ide := workspace.NewIDEWorker(m.store, m.model, m.cfg.Workspace.Dir, m.logger)
	ide.OnBuilt = func(description, path string) {
		m.notify("Task built", description+"\n"+path, notify.UrgencyNormal)
	}
	return ide
}

// SonarFinished notifies the user that one of their sonars ended.
func (m *Manager) SonarFinished(id, status string) {
	urgency := notify.UrgencyNormal
	if status == sonar.StatusFailed {
		urgency = notify.UrgencyCritical
	}
	m.notify("Project sonar "+status, id, urgency)
}

func (m *Manager) onMessage(msg team.Message) {
	m.notify("Message from "+msg.Sender, msg.Body, notify.UrgencyNormal)
}

func (m *Manager) onClipboard(ctx context.Context, text string) {
	if !workspace.IsTask(text) {
		return
	}
	if _, err := m.canvas.SpawnTask(ctx, m.cfg.UserID, text); err != nil {
		m.logger.Warn("failed to spawn task from clipboard", zap.Error(err))
		return
	}
	m.notify("Task added", workspace.TaskDescription(text), notify.UrgencyLow)
}

// harmonizer picks a biometric source: Oura when a token is configured,
// simulated readings when enabled, otherwise none.
func (m *Manager) harmonizer() *harmonizer.Harmonizer {
	var source harmonizer.Source
	switch {
	case m.cfg.Tokens.Oura != "":
		source = harmonizer.NewOura(m.cfg.Tokens.Oura, m.logger)
	case m.cfg.Harmonizer.Simulate:
		source = harmonizer.NewSimulated(time.Now().UnixNano())
	default:
		return nil
	}
	h := harmonizer.New(m.store, m.cfg.UserID, HarmonizerThresholds(m.cfg), source, m.logger)
	h.OnRecommend = func(r harmonizer.Recommendation) {
		urgency := notify.UrgencyNormal
		if r.Kind == harmonizer.KindHighStress {
			urgency = notify.UrgencyCritical
		}
		m.notify("Bio-cognitive harmonizer", r.Message, urgency)
	}
	return h
}

// HarmonizerThresholds converts the harmonizer section of cfg.
func HarmonizerThresholds(cfg *config.Config) harmonizer.Thresholds {
	t := harmonizer.DefaultThresholds()
	if cfg.Harmonizer.HeartRateThreshold > 0 {
		t.HeartRate = cfg.Harmonizer.HeartRateThreshold
	}
	if cfg.Harmonizer.LowHRVThreshold > 0 {
		t.LowHRV = cfg.Harmonizer.LowHRVThreshold
	}
	if cfg.Harmonizer.PoorSleepHours > 0 {
		t.PoorSleepHours = cfg.Harmonizer.PoorSleepHours
	}
	return t
}

func (m *Manager) notify(title, body string, urgency notify.Urgency) {
	if err := m.notifier.Send(title, body, urgency); err != nil {
		m.logger.Debug("notification failed", zap.Error(err))
	}
}
