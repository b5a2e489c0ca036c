// Package config loads datanerd configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"datanerd/internal/types"
)

// Config holds all datanerd configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider for the planner and insight generator
	LLM LLMConfig `yaml:"llm"`

	// Persistent state (runs, memory, tool cache) and run logs
	Storage StorageConfig `yaml:"storage"`

	// Memory participation for ad hoc runs
	Memory MemoryConfig `yaml:"memory"`

	// Analytics dataset location and seeding parameters
	Dataset DatasetConfig `yaml:"dataset"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM boundary client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini, none, or fake:<name>
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StorageConfig locates the state store and the run-log directory.
type StorageConfig struct {
	StatePath string `yaml:"state_path"`
	RunsDir   string `yaml:"runs_dir"`
}

// MemoryConfig selects the default memory mode for ad hoc queries.
type MemoryConfig struct {
	Mode string `yaml:"mode"`
}

// DatasetConfig locates and seeds the analytics dataset.
type DatasetConfig struct {
	Path     string `yaml:"path"`
	Seed     int64  `yaml:"seed"`
	StartDay string `yaml:"start_day"`
	Days     int    `yaml:"days"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "datanerd",
		Version: "0.1.0",

		LLM: LLMConfig{
			Provider: "none",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "60s",
		},

		Storage: StorageConfig{
			StatePath: "data/state.db",
			RunsDir:   "data/runs",
		},

		Memory: MemoryConfig{
			Mode: string(types.MemoryModeReadWrite),
		},

		Dataset: DatasetConfig{
			Path:     "data/analytics.db",
			Seed:     42,
			StartDay: "2025-10-01",
			Days:     120,
		},

		Logging: LoggingConfig{
			Verbose: false,
		},
	}
}

// DefaultPath returns the first config file that exists, preferring the
// working directory over the home directory. Empty when neither exists.
func DefaultPath() string {
	if _, err := os.Stat("datanerd.yaml"); err == nil {
		return "datanerd.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".datanerd", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys imply
// their provider; an explicit DATANERD_PROVIDER wins over implication.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if p := os.Getenv("DATANERD_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if m := os.Getenv("DATANERD_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if u := os.Getenv("OPENAI_BASE_URL"); u != "" {
		c.LLM.BaseURL = u
	}

	if path := os.Getenv("DATANERD_DB"); path != "" {
		c.Storage.StatePath = path
	}
	if path := os.Getenv("DATANERD_DATA_DB"); path != "" {
		c.Dataset.Path = path
	}
	if dir := os.Getenv("DATANERD_RUNS_DIR"); dir != "" {
		c.Storage.RunsDir = dir
	}
	if mode := os.Getenv("DATANERD_MEMORY_MODE"); mode != "" {
		c.Memory.Mode = mode
	}
	if seed := os.Getenv("DATANERD_SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Dataset.Seed = n
		}
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// MemoryMode returns the configured memory mode as a typed value.
func (c *Config) MemoryMode() types.MemoryMode {
	return types.MemoryMode(c.Memory.Mode)
}

// ValidProviders lists the supported real LLM providers. Providers named
// "fake:<name>" are accepted for harness and test use.
var ValidProviders = []string{"openai", "gemini", "none"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.MemoryMode().Valid() {
		return fmt.Errorf("invalid memory mode: %s", c.Memory.Mode)
	}

	validProvider := strings.HasPrefix(c.LLM.Provider, "fake:")
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v or fake:<name>)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.Provider == "openai" || c.LLM.Provider == "gemini" {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
		}
	}

	if c.Dataset.Days <= 0 {
		return fmt.Errorf("dataset days must be positive: %d", c.Dataset.Days)
	}
	if _, err := time.Parse("2006-01-02", c.Dataset.StartDay); err != nil {
		return fmt.Errorf("invalid dataset start day %q: %w", c.Dataset.StartDay, err)
	}
	return nil
}
