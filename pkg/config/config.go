// Package config loads the application configuration for the helmsman CLI:
// provider API keys, storage paths, session guardrails, and the optimizer
// schedule. Values come from ~/.helmsman/config.yaml with environment
// variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string

	// StorePath is the SQLite database holding baselines and outcomes.
	StorePath string
	// JournalPath is the JSONL event journal.
	JournalPath string
	// CronSchedule overrides the optimizer cadence. Empty keeps the
	// coordinator default.
	CronSchedule string
	// MaxCostUSD caps spend per session. Zero means unlimited.
	MaxCostUSD float64
	// MaxDuration caps wall-clock time per session. Zero keeps the
	// engine default.
	MaxDuration time.Duration

	ConfigDir string
}

// FileConfig is the structure of ~/.helmsman/config.yaml. Relative store
// and journal paths are resolved against the config directory.
type FileConfig struct {
	APIKeys   APIKeysConfig   `yaml:"api_keys"`
	Store     string          `yaml:"store"`
	Journal   string          `yaml:"journal"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
}

// OptimizerConfig holds the background optimizer settings.
type OptimizerConfig struct {
	Schedule string `yaml:"schedule"`
}

// LimitsConfig holds per-session guardrail settings.
type LimitsConfig struct {
	MaxCostUSD         float64 `yaml:"max_cost_usd"`
	MaxDurationSeconds int     `yaml:"max_duration_seconds"`
}

// Load reads configuration from ~/.helmsman/config.yaml and environment
// variables. Environment variables take precedence over file values; file
// paths are resolved against the config directory, environment paths are
// taken as given.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		DeepSeekAPIKey:  getEnvOrDefault("DEEPSEEK_API_KEY", fileConfig.APIKeys.DeepSeek),
		CronSchedule:    getEnvOrDefault("HELMSMAN_SCHEDULE", fileConfig.Optimizer.Schedule),
		ConfigDir:       configDir,
	}

	cfg.StorePath = resolvePath(configDir, fileConfig.Store, "helmsman.db")
	if p := os.Getenv("HELMSMAN_STORE"); p != "" {
		cfg.StorePath = p
	}
	cfg.JournalPath = resolvePath(configDir, fileConfig.Journal, "journal.jsonl")
	if p := os.Getenv("HELMSMAN_JOURNAL"); p != "" {
		cfg.JournalPath = p
	}

	cfg.MaxCostUSD = fileConfig.Limits.MaxCostUSD
	if v := os.Getenv("HELMSMAN_MAX_COST_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("HELMSMAN_MAX_COST_USD: %w", err)
		}
		cfg.MaxCostUSD = f
	}

	seconds := fileConfig.Limits.MaxDurationSeconds
	if v := os.Getenv("HELMSMAN_MAX_DURATION_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HELMSMAN_MAX_DURATION_SECONDS: %w", err)
		}
		seconds = n
	}
	cfg.MaxDuration = time.Duration(seconds) * time.Second

	return cfg, nil
}

// HasAdapter returns true if the API key for the given provider is
// configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	default:
		return false
	}
}

// HasAnyAdapter reports whether at least one provider key is configured.
func (c *Config) HasAnyAdapter() bool {
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != "" ||
		c.GoogleAPIKey != "" || c.DeepSeekAPIKey != ""
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg // Return empty config if file doesn't exist
	}

	_ = yaml.Unmarshal(data, cfg) // Ignore parse errors, use defaults
	return cfg
}

// resolvePath resolves a file-config path against the config directory,
// substituting fallback when unset.
func resolvePath(configDir, p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(configDir, p)
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".helmsman")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
