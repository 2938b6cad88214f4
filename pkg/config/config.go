package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig                `mapstructure:"app" yaml:"app"`
	LLM      LLMConfig                `mapstructure:"llm" yaml:"llm"`
	Planner  PlannerConfig            `mapstructure:"planner" yaml:"planner"`
	Executor ExecutorConfig           `mapstructure:"executor" yaml:"executor"`
	Safety   SafetyConfig             `mapstructure:"safety" yaml:"safety"`
	Backend  BackendConfig            `mapstructure:"backend" yaml:"backend"`
	Gateways map[string]GatewayConfig `mapstructure:"gateways" yaml:"gateways"`
	Memory   MemoryConfig             `mapstructure:"memory" yaml:"memory"`
	Logging  LoggingConfig            `mapstructure:"logging" yaml:"logging"`
}

type AppConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	DryRun bool   `mapstructure:"dry_run" yaml:"dry_run"`
}

// LLMConfig selects the inference provider and the per-stage models.
// Empty stage fields fall back to the active preset.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	URL               string  `mapstructure:"url" yaml:"url"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Preset            string  `mapstructure:"preset" yaml:"preset"`
	StageAModel       string  `mapstructure:"stage_a_model" yaml:"stage_a_model,omitempty"`
	StageBModel       string  `mapstructure:"stage_b_model" yaml:"stage_b_model,omitempty"`
	StageATemperature float64 `mapstructure:"stage_a_temperature" yaml:"stage_a_temperature,omitempty"`
	StageBTemperature float64 `mapstructure:"stage_b_temperature" yaml:"stage_b_temperature,omitempty"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type PlannerConfig struct {
	CacheCapacity       int     `mapstructure:"cache_capacity" yaml:"cache_capacity"`
	CacheTTLSeconds     int     `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	MaxActions          int     `mapstructure:"max_actions" yaml:"max_actions"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	SnapshotTokens      int     `mapstructure:"snapshot_tokens" yaml:"snapshot_tokens"`
	ClarificationReplan bool    `mapstructure:"clarification_replan" yaml:"clarification_replan"`
	PromptDir           string  `mapstructure:"prompt_dir" yaml:"prompt_dir"`
	AliasFile           string  `mapstructure:"alias_file" yaml:"alias_file"`
}

type ExecutorConfig struct {
	MaxStepsPerGoal     int  `mapstructure:"max_steps_per_goal" yaml:"max_steps_per_goal"`
	MaxRetriesPerAction int  `mapstructure:"max_retries_per_action" yaml:"max_retries_per_action"`
	RetryDelayMillis    int  `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	TickIntervalMillis  int  `mapstructure:"tick_interval_ms" yaml:"tick_interval_ms"`
	QueueMode           bool `mapstructure:"queue_mode" yaml:"queue_mode"`
}

type SafetyConfig struct {
	SafeMode       bool     `mapstructure:"safe_mode" yaml:"safe_mode"`
	DeniedActions  []string `mapstructure:"denied_actions" yaml:"denied_actions"`
	DeniedPatterns []string `mapstructure:"denied_patterns" yaml:"denied_patterns"`
}

// BackendConfig picks the automation backend: "sim" or "bridge".
type BackendConfig struct {
	Kind      string `mapstructure:"kind" yaml:"kind"`
	BridgeURL string `mapstructure:"bridge_url" yaml:"bridge_url"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	// Channel is the Discord channel to listen in. For the game gateway it
	// is the chat trigger word.
	Channel string `mapstructure:"channel" yaml:"channel,omitempty"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Path string `mapstructure:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "commander"},
		LLM: LLMConfig{
			Provider:       "ollama",
			URL:            "http://127.0.0.1:11434",
			Preset:         PresetBalanced,
			TimeoutSeconds: 60,
		},
		Planner: PlannerConfig{
			CacheCapacity:       20,
			CacheTTLSeconds:     45,
			MaxActions:          8,
			ConfidenceThreshold: 0.75,
			SnapshotTokens:      500,
			PromptDir:           "./prompts",
			AliasFile:           "aliases.yaml",
		},
		Executor: ExecutorConfig{
			MaxStepsPerGoal:     1000,
			MaxRetriesPerAction: 3,
			RetryDelayMillis:    2000,
			TickIntervalMillis:  500,
		},
		Safety:  SafetyConfig{SafeMode: true},
		Backend: BackendConfig{Kind: "sim", BridgeURL: "ws://127.0.0.1:8765/bridge"},
		Gateways: map[string]GatewayConfig{
			"terminal": {Enabled: true},
			"telegram": {},
			"discord":  {},
			"game":     {Enabled: true, Channel: "ai"},
		},
		Memory:  MemoryConfig{Type: "sqlite", Path: "commander.db"},
		Logging: LoggingConfig{Level: "info", Dir: "logs"},
	}
}

// LoadFromPath reads a YAML file, merging COMMANDER_* environment overrides
// (for example COMMANDER_LLM_PRESET). A missing file is created with defaults.
func LoadFromPath(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Default().SaveToPath(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COMMANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Preset == "" {
		c.LLM.Preset = d.LLM.Preset
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if c.Planner.CacheCapacity <= 0 {
		c.Planner.CacheCapacity = d.Planner.CacheCapacity
	}
	if c.Planner.CacheTTLSeconds <= 0 {
		c.Planner.CacheTTLSeconds = d.Planner.CacheTTLSeconds
	}
	if c.Planner.MaxActions <= 0 {
		c.Planner.MaxActions = d.Planner.MaxActions
	}
	if c.Planner.ConfidenceThreshold <= 0 {
		c.Planner.ConfidenceThreshold = d.Planner.ConfidenceThreshold
	}
	if c.Planner.SnapshotTokens <= 0 {
		c.Planner.SnapshotTokens = d.Planner.SnapshotTokens
	}
	if c.Executor.MaxStepsPerGoal <= 0 {
		c.Executor.MaxStepsPerGoal = d.Executor.MaxStepsPerGoal
	}
	if c.Executor.MaxRetriesPerAction < 0 {
		c.Executor.MaxRetriesPerAction = d.Executor.MaxRetriesPerAction
	}
	if c.Executor.RetryDelayMillis < 0 {
		c.Executor.RetryDelayMillis = d.Executor.RetryDelayMillis
	}
	if c.Executor.TickIntervalMillis <= 0 {
		c.Executor.TickIntervalMillis = d.Executor.TickIntervalMillis
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = d.Backend.Kind
	}
	if c.Memory.Path == "" {
		c.Memory.Path = d.Memory.Path
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = d.Logging.Dir
	}
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	if _, ok := Presets[c.LLM.Preset]; !ok {
		return fmt.Errorf("unknown preset %q (want fast, balanced or thinking)", c.LLM.Preset)
	}
	switch c.LLM.Provider {
	case "ollama", "langchain-ollama", "openai", "openrouter":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Backend.Kind {
	case "sim", "bridge":
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}
	return nil
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetGatewayConfig returns a front-end's settings if it is enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}

// Stages resolves the active preset and per-stage overrides.
func (c *Config) Stages() Stages {
	p := Presets[c.LLM.Preset]
	s := Stages{
		StageAModel:       p.StageAModel,
		StageBModel:       p.StageBModel,
		StageATemperature: p.StageATemperature,
		StageBTemperature: p.StageBTemperature,
		StageBTimeout:     time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}
	if c.LLM.StageAModel != "" {
		s.StageAModel = c.LLM.StageAModel
	}
	if c.LLM.StageBModel != "" {
		s.StageBModel = c.LLM.StageBModel
	}
	if c.LLM.StageATemperature > 0 {
		s.StageATemperature = c.LLM.StageATemperature
	}
	if c.LLM.StageBTemperature > 0 {
		s.StageBTemperature = c.LLM.StageBTemperature
	}
	s.StageATimeout = s.StageBTimeout / 3
	if s.StageATimeout < 5*time.Second {
		s.StageATimeout = 5 * time.Second
	}
	return s
}

func (e ExecutorConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelayMillis) * time.Millisecond
}

func (e ExecutorConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalMillis) * time.Millisecond
}

func (p PlannerConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}
