package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_BACKEND_TOKEN", "tok-123")
	defer os.Unsetenv("TEST_BACKEND_TOKEN")

	path := writeConfig(t, `
backend:
  url: http://sd.internal:7860
  token: ${TEST_BACKEND_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Token != "tok-123" {
		t.Errorf("expected token tok-123, got %s", cfg.Backend.Token)
	}
	if cfg.Backend.URL != "http://sd.internal:7860" {
		t.Errorf("unexpected backend URL %s", cfg.Backend.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts default = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("retry.base_delay default = %v, want 1s", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.BackoffFactor != 2.0 {
		t.Errorf("retry.backoff_factor default = %v, want 2.0", cfg.Retry.BackoffFactor)
	}
	if got := cfg.Retry.Media.RetryableExitCodes; len(got) != 2 || got[0] != 1 || got[1] != 255 {
		t.Errorf("retry.media.retryable_exit_codes default = %v, want [1 255]", got)
	}
	if cfg.Retry.Media.Enabled {
		t.Error("media retry must be disabled unless configured")
	}
	if cfg.Scheduler.Concurrency != 1 || cfg.Scheduler.Cooldown != 5*time.Second {
		t.Errorf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.EventLog.Path != "logs/pipeline.jsonl" {
		t.Errorf("event_log.path default = %s", cfg.EventLog.Path)
	}
}

func TestLoad_RetrySection(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 5
  base_delay: 250ms
  backoff_factor: 1.5
  jitter_max: 100ms
  media:
    enabled: true
    retryable_exit_codes: [1, 255, 69]
scheduler:
  concurrency: 3
  cooldown: 2s
  max_retries: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("retry section not parsed: %+v", cfg.Retry)
	}
	if cfg.Retry.JitterMax != 100*time.Millisecond {
		t.Errorf("jitter_max = %v, want 100ms", cfg.Retry.JitterMax)
	}
	if !cfg.Retry.Media.Enabled || len(cfg.Retry.Media.RetryableExitCodes) != 3 {
		t.Errorf("media retry section not parsed: %+v", cfg.Retry.Media)
	}
	if cfg.Scheduler.Concurrency != 3 || cfg.Scheduler.MaxRetries != 2 {
		t.Errorf("scheduler section not parsed: %+v", cfg.Scheduler)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
