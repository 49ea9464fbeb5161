package baseline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a baseline from a YAML file.
func LoadFile(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Baseline
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveFile writes a baseline to a YAML file.
func SaveFile(path string, b *Baseline) error {
	if err := b.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadWithFallback loads the baseline from the HELMSMAN_BASELINE env path,
// then ~/.helmsman/baseline.yaml, then the provided default path, and
// finally falls back to Default(). Environment takes precedence over files.
func LoadWithFallback(defaultPath string) (*Baseline, error) {
	if path := os.Getenv("HELMSMAN_BASELINE"); path != "" {
		return LoadFile(path)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".helmsman", "baseline.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return LoadFile(userPath)
		}
	}

	if defaultPath != "" {
		if _, err := os.Stat(defaultPath); err == nil {
			return LoadFile(defaultPath)
		}
	}

	return Default(), nil
}

// ConfigDir returns the helmsman config directory, creating it if needed.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".helmsman")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
