package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.API.Platform != "openai" {
		t.Errorf("default platform = %q, want openai", settings.API.Platform)
	}
	if settings.API.Timeout != 15*time.Minute {
		t.Errorf("default timeout = %v, want 15m", settings.API.Timeout)
	}
	if !settings.Filters.Injection.Enabled || !settings.Filters.PII.Enabled {
		t.Error("filters must default to enabled")
	}
	if settings.Filters.Injection.FailClosed {
		t.Error("injection filter must default to fail-open")
	}
	if settings.Orchestrator.MaxRounds != 16 {
		t.Errorf("default max rounds = %d, want 16", settings.Orchestrator.MaxRounds)
	}
	if settings.Orchestrator.MaxRetries != 8 {
		t.Errorf("default max retries = %d, want 8", settings.Orchestrator.MaxRetries)
	}
	if settings.Paths.LogDir != "daily_logs" {
		t.Errorf("default log dir = %q", settings.Paths.LogDir)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  platform: anthropic
  timeout: 2m
  platforms:
    anthropic:
      llm_model: claude-opus-4-5-20251101
    openai:
      base_url: https://llm.internal/v1
      service_tier: flex
paths:
  materials_db_path: /tmp/materials.db
filters:
  injection:
    fail_closed: true
orchestrator:
  max_rounds: 4
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(LoaderOptions{ConfigPaths: []string{dir}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.API.Platform != "anthropic" {
		t.Errorf("platform = %q, want anthropic", settings.API.Platform)
	}
	if settings.API.Timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want 2m", settings.API.Timeout)
	}
	if got := settings.Platform().LLMModel; got != "claude-opus-4-5-20251101" {
		t.Errorf("platform model = %q", got)
	}
	if got := settings.API.Platforms["openai"].ServiceTier; got != "flex" {
		t.Errorf("openai service tier = %q, want flex", got)
	}
	if !settings.Filters.Injection.FailClosed {
		t.Error("injection fail_closed not read from file")
	}
	if settings.Orchestrator.MaxRounds != 4 {
		t.Errorf("max rounds = %d, want 4", settings.Orchestrator.MaxRounds)
	}
	// Untouched keys keep their defaults.
	if settings.Orchestrator.MaxBackoff != 5*time.Second {
		t.Errorf("max backoff = %v, want default 5s", settings.Orchestrator.MaxBackoff)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CERBERUS_API_PLATFORM", "gemini")
	t.Setenv("CERBERUS_ORCHESTRATOR_MAX_ROUNDS", "3")

	settings, err := Load(LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.API.Platform != "gemini" {
		t.Errorf("env override ignored, platform = %q", settings.API.Platform)
	}
	if settings.Orchestrator.MaxRounds != 3 {
		t.Errorf("env override ignored, max rounds = %d", settings.Orchestrator.MaxRounds)
	}
}

func TestPlatformUnknownIsEmpty(t *testing.T) {
	t.Setenv("CERBERUS_API_PLATFORM", "deepseek")

	settings, err := Load(LoaderOptions{ConfigPaths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p := settings.Platform(); p != (PlatformConfig{}) {
		t.Errorf("unconfigured platform must be zero, got %+v", p)
	}
}
