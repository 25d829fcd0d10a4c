// Package config handles agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "30s"-style YAML values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all agent configuration. Values come from an optional YAML
// file; the API key and archive DSN may also arrive via environment
// variables, which take precedence.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Memory  MemoryConfig  `yaml:"memory"`
	Agent   AgentConfig   `yaml:"agent"`
	Archive ArchiveConfig `yaml:"archive"`
	PyMOL   PyMOLConfig   `yaml:"pymol"`
	Desktop DesktopConfig `yaml:"desktop"`

	LogLevel string `yaml:"log_level"`
}

// ModelConfig defines the Gemini model settings.
type ModelConfig struct {
	APIKey         string  `yaml:"api_key"`
	Name           string  `yaml:"name"`            // generation model, default gemini-2.5-pro
	EmbeddingModel string  `yaml:"embedding_model"` // default text-embedding-004
	Temperature    float32 `yaml:"temperature"`
	// RequestsPerMinute throttles model calls; 0 disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// MemoryConfig bounds the conversation memory tiers.
type MemoryConfig struct {
	ShortTermCapacity  int     `yaml:"short_term_capacity"` // C_short, default 10
	LongTermCapacity   int     `yaml:"long_term_capacity"`  // C_long, default 200
	PromotionThreshold float64 `yaml:"promotion_threshold"` // default 0.7
	DigestBudget       int     `yaml:"digest_budget"`       // default 2000
	DigestTokenBudget  bool    `yaml:"digest_token_budget"` // measure budget in tokens instead of characters
}

// AgentConfig bounds a single turn of the orchestration loop.
type AgentConfig struct {
	ToolTimeout Duration `yaml:"tool_timeout"` // default 30s
	MaxRounds   int      `yaml:"max_rounds"`   // tool-dispatch rounds per turn, default 8
	// AutoConfirm executes destructive tools without prompting. Off by default.
	AutoConfirm bool `yaml:"auto_confirm"`
}

// ArchiveConfig selects the optional long-term memory archive backend.
type ArchiveConfig struct {
	// Driver is "sqlite", "postgres", or empty to keep memory in-process only.
	Driver string `yaml:"driver"`
	// DSN is the SQLite file path or Postgres connection URL.
	DSN string `yaml:"dsn"`
}

// PyMOLConfig points at the PyMOL remote command endpoint.
type PyMOLConfig struct {
	Endpoint string   `yaml:"endpoint"` // default http://127.0.0.1:9123
	Timeout  Duration `yaml:"timeout"`  // per-request, default 15s
}

// DesktopConfig gates the desktop automation tool pack.
type DesktopConfig struct {
	// Enabled registers mouse/keyboard/window tools. Disabled by default
	// since they act on the user's live session.
	Enabled bool `yaml:"enabled"`
}

// DefaultSearchPaths returns the config file search order. An explicit path
// (from the -config flag) is checked first by Load.
func DefaultSearchPaths() []string {
	paths := []string{"pymol-agent.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pymol-agent", "config.yaml"))
	}
	return paths
}

// Load reads configuration from the given path, or from the first file in
// DefaultSearchPaths when path is empty. A missing file is not an error: the
// defaults plus environment variables are enough for a working agent.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, found, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if found {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Model: ModelConfig{
			Name:           "gemini-2.5-pro",
			EmbeddingModel: "text-embedding-004",
			Temperature:    0.1,
		},
		Memory: MemoryConfig{
			ShortTermCapacity:  10,
			LongTermCapacity:   200,
			PromotionThreshold: 0.7,
			DigestBudget:       2000,
		},
		Agent: AgentConfig{
			ToolTimeout: Duration(30 * time.Second),
			MaxRounds:   8,
		},
		PyMOL: PyMOLConfig{
			Endpoint: "http://127.0.0.1:9123",
			Timeout:  Duration(15 * time.Second),
		},
		LogLevel: "info",
	}
}

func readFile(explicit string) ([]byte, bool, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return nil, false, fmt.Errorf("config file not found: %s", explicit)
		}
		return data, true, nil
	}
	for _, p := range DefaultSearchPaths() {
		if data, err := os.ReadFile(p); err == nil {
			return data, true, nil
		}
	}
	return nil, false, nil
}

// applyEnv overlays environment variables onto the loaded config.
// GEMINI_API_KEY is checked before GOOGLE_API_KEY, matching the Gemini SDK.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("PYMOL_AGENT_ARCHIVE_DSN"); v != "" {
		cfg.Archive.DSN = v
	}
}

func (c Config) validate() error {
	if c.Memory.ShortTermCapacity <= 0 {
		return fmt.Errorf("memory.short_term_capacity must be positive, got %d", c.Memory.ShortTermCapacity)
	}
	if c.Memory.LongTermCapacity <= 0 {
		return fmt.Errorf("memory.long_term_capacity must be positive, got %d", c.Memory.LongTermCapacity)
	}
	if c.Memory.PromotionThreshold < 0 || c.Memory.PromotionThreshold > 1 {
		return fmt.Errorf("memory.promotion_threshold must be in [0,1], got %g", c.Memory.PromotionThreshold)
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.ToolTimeout <= 0 {
		return fmt.Errorf("agent.tool_timeout must be positive, got %s", c.Agent.ToolTimeout.Std())
	}
	switch c.Archive.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("archive.driver must be \"sqlite\" or \"postgres\", got %q", c.Archive.Driver)
	}
	if c.Archive.Driver != "" && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when archive.driver is set")
	}
	return nil
}
