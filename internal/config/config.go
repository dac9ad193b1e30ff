// Package config handles configuration loading and defaults.
//
// Values come from three layers, later layers winning:
//
//	DefaultConfig() -> ~/.config/echo/config.yaml -> environment
//
// The environment layer exists so the API server can be started in a
// container without writing a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ECHO.
type Config struct {
	UserID string `yaml:"user_id"`
	TeamID string `yaml:"team_id"`

	DataDir string `yaml:"data_dir"`

	Sensor     SensorConfig     `yaml:"sensor"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	LLM        LLMConfig        `yaml:"llm"`
	Harmonizer HarmonizerConfig `yaml:"harmonizer"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Market     MarketConfig     `yaml:"market"`
	Tokens     TokenConfig      `yaml:"tokens"`
}

// SensorConfig controls the cognitive sensor loop.
type SensorConfig struct {
	IntervalSeconds          int     `yaml:"interval_seconds"`
	ActivityThresholdSeconds int     `yaml:"activity_threshold_seconds"`
	FrustrationBackspace     float64 `yaml:"frustration_backspace"`
	FlowCadence              int     `yaml:"flow_cadence"`
	FlowBackspace            float64 `yaml:"flow_backspace"`
	FlowMouse                int     `yaml:"flow_mouse"`
	AudioEnabled             bool    `yaml:"audio_enabled"` // opt-in, microphone
	IntentsEnabled           bool    `yaml:"intents_enabled"`
}

// ServerConfig controls the HTTP/WebSocket API.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	RateLimit    int    `yaml:"rate_limit"` // requests per second per client
	RateBurst    int    `yaml:"rate_burst"`
	SimulateTeam bool   `yaml:"simulate_team"`
}

// StoreConfig points at the local database and an optional remote mirror.
type StoreConfig struct {
	Path      string `yaml:"path"`
	RemoteURL string `yaml:"remote_url"` // Firebase RTDB base URL
	RemoteKey string `yaml:"remote_key"`
}

// LLMConfig holds settings for the OpenAI-compatible provider.
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	ChatModel string `yaml:"chat_model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// HarmonizerConfig holds the biometric thresholds.
type HarmonizerConfig struct {
	HeartRateThreshold float64 `yaml:"heart_rate_threshold"`
	LowHRVThreshold    float64 `yaml:"low_hrv_threshold"`
	PoorSleepHours     float64 `yaml:"poor_sleep_hours"`
	Simulate           bool    `yaml:"simulate"` // random readings when no wearable is linked
}

// WorkspaceConfig controls the IDE task worker.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// MarketConfig controls landing page generation and simulated ad platforms.
type MarketConfig struct {
	PagesDir  string   `yaml:"pages_dir"`
	Platforms []string `yaml:"platforms"`
}

// TokenConfig holds third-party API tokens.
type TokenConfig struct {
	GitHub    string `yaml:"github"`
	Figma     string `yaml:"figma"`
	Oura      string `yaml:"oura"`
	MasterKey string `yaml:"master_key"` // secret for the data bridge key derivation
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	dataDir := filepath.Join(home, ".local", "share", "echo")

	return &Config{
		UserID:  "user_001",
		TeamID:  "team_alpha",
		DataDir: dataDir,

		Sensor: SensorConfig{
			IntervalSeconds:          3,
			ActivityThresholdSeconds: 60,
			FrustrationBackspace:     0.3,
			FlowCadence:              10,
			FlowBackspace:            0.1,
			FlowMouse:                2,
		},

		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			RateLimit:    20,
			RateBurst:    40,
			SimulateTeam: true,
		},

		Store: StoreConfig{
			Path: filepath.Join(dataDir, "echo.db"),
		},

		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			ChatModel: "gpt-4o-mini",
			MaxTokens: 1500,
		},

		Harmonizer: HarmonizerConfig{
			HeartRateThreshold: 70,
			LowHRVThreshold:    30,
			PoorSleepHours:     5.0,
		},

		Workspace: WorkspaceConfig{
			Dir: filepath.Join(home, "echo_workspace"),
		},

		Market: MarketConfig{
			PagesDir:  filepath.Join(dataDir, "pages"),
			Platforms: []string{"google", "facebook"},
		},
	}
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "echo", "config.yaml")
	}
	return filepath.Join(home, ".config", "echo", "config.yaml")
}

// Load loads configuration from path (or the default path when empty),
// falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}

	if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	applyEnv(cfg)
	cfg.expandPaths()
	return cfg, nil
}

// loadFromFile reads a YAML config file and merges it into cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides values from the environment.
func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.UserID, "ECHO_USER_ID")
	setString(&cfg.TeamID, "ECHO_TEAM_ID")
	setString(&cfg.Tokens.GitHub, "GITHUB_TOKEN")
	setString(&cfg.Tokens.Figma, "FIGMA_TOKEN")
	setString(&cfg.Tokens.Oura, "OURA_TOKEN")
	setString(&cfg.Tokens.MasterKey, "ECHO_MASTER_KEY")
	setString(&cfg.Store.RemoteURL, "FIREBASE_DATABASE_URL")

	if v := os.Getenv("ECHO_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func (c *Config) expandPaths() {
	c.DataDir = expandTilde(c.DataDir)
	c.Store.Path = expandTilde(c.Store.Path)
	c.Workspace.Dir = expandTilde(c.Workspace.Dir)
	c.Market.PagesDir = expandTilde(c.Market.PagesDir)
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Save writes the config to path (or the default path when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// SensorInterval returns the polling interval of the cognitive sensor.
func (c *Config) SensorInterval() time.Duration {
	if c.Sensor.IntervalSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Sensor.IntervalSeconds) * time.Second
}

// ActivityThreshold returns how long input may be absent before the user is
// considered idle.
func (c *Config) ActivityThreshold() time.Duration {
	if c.Sensor.ActivityThresholdSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sensor.ActivityThresholdSeconds) * time.Second
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
