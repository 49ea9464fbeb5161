package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	wantDir := filepath.Join(home, ".helmsman")
	if cfg.ConfigDir != wantDir {
		t.Fatalf("expected config dir %s, got %s", wantDir, cfg.ConfigDir)
	}
	if cfg.StorePath != filepath.Join(wantDir, "helmsman.db") {
		t.Fatalf("unexpected store path %s", cfg.StorePath)
	}
	if cfg.JournalPath != filepath.Join(wantDir, "journal.jsonl") {
		t.Fatalf("unexpected journal path %s", cfg.JournalPath)
	}
	if cfg.CronSchedule != "" || cfg.MaxCostUSD != 0 || cfg.MaxDuration != 0 {
		t.Fatalf("expected zero limits and schedule, got %+v", cfg)
	}
	if cfg.HasAnyAdapter() {
		t.Fatalf("expected no adapters configured")
	}
}

func TestLoadFileConfig(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	configDir := filepath.Join(home, ".helmsman")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\n" +
		"store: sessions.db\njournal: /var/log/helmsman.jsonl\n" +
		"optimizer:\n  schedule: \"@daily\"\n" +
		"limits:\n  max_cost_usd: 12.5\n  max_duration_seconds: 90\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AnthropicAPIKey != "file-ant" {
		t.Fatalf("expected file API key, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.StorePath != filepath.Join(configDir, "sessions.db") {
		t.Fatalf("expected relative store resolved against config dir, got %s", cfg.StorePath)
	}
	if cfg.JournalPath != "/var/log/helmsman.jsonl" {
		t.Fatalf("expected absolute journal path kept, got %s", cfg.JournalPath)
	}
	if cfg.CronSchedule != "@daily" {
		t.Fatalf("expected schedule @daily, got %q", cfg.CronSchedule)
	}
	if cfg.MaxCostUSD != 12.5 {
		t.Fatalf("expected max cost 12.5, got %v", cfg.MaxCostUSD)
	}
	if cfg.MaxDuration != 90*time.Second {
		t.Fatalf("expected max duration 90s, got %v", cfg.MaxDuration)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	configDir := filepath.Join(home, ".helmsman")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  openai: file-openai\n" +
		"store: file.db\nlimits:\n  max_cost_usd: 1\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("HELMSMAN_STORE", "/tmp/env.db")
	t.Setenv("HELMSMAN_MAX_COST_USD", "7.25")
	t.Setenv("HELMSMAN_MAX_DURATION_SECONDS", "45")
	t.Setenv("HELMSMAN_SCHEDULE", "@every 30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.OpenAIAPIKey != "env-openai" {
		t.Fatalf("expected env API key to win, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.StorePath != "/tmp/env.db" {
		t.Fatalf("expected env store path taken as given, got %s", cfg.StorePath)
	}
	if cfg.MaxCostUSD != 7.25 {
		t.Fatalf("expected env max cost, got %v", cfg.MaxCostUSD)
	}
	if cfg.MaxDuration != 45*time.Second {
		t.Fatalf("expected env max duration, got %v", cfg.MaxDuration)
	}
	if cfg.CronSchedule != "@every 30m" {
		t.Fatalf("expected env schedule, got %q", cfg.CronSchedule)
	}
}

func TestLoadRejectsMalformedNumericEnv(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	t.Setenv("HELMSMAN_MAX_COST_USD", "a-lot")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed max cost")
	}

	t.Setenv("HELMSMAN_MAX_COST_USD", "")
	t.Setenv("HELMSMAN_MAX_DURATION_SECONDS", "ninety")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed max duration")
	}
}

func TestHasAdapter(t *testing.T) {
	cfg := &Config{AnthropicAPIKey: "key", DeepSeekAPIKey: "key"}

	cases := []struct {
		name string
		want bool
	}{
		{"anthropic", true},
		{"deepseek", true},
		{"openai", false},
		{"google", false},
		{"unknown", false},
	}
	for _, tc := range cases {
		if got := cfg.HasAdapter(tc.name); got != tc.want {
			t.Fatalf("HasAdapter(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
	if !cfg.HasAnyAdapter() {
		t.Fatalf("expected HasAnyAdapter true")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}

// clearEnv blanks every variable Load reads so host settings cannot leak
// into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "DEEPSEEK_API_KEY",
		"HELMSMAN_STORE", "HELMSMAN_JOURNAL", "HELMSMAN_SCHEDULE",
		"HELMSMAN_MAX_COST_USD", "HELMSMAN_MAX_DURATION_SECONDS",
	} {
		t.Setenv(v, "")
	}
}
