package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, used when
// no config file is given.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://127.0.0.1:7860"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 120 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1 * time.Second
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = 2.0
	}
	if len(cfg.Retry.Media.RetryableExitCodes) == 0 {
		cfg.Retry.Media.RetryableExitCodes = []int{1, 255}
	}
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = 1
	}
	if cfg.Scheduler.Cooldown == 0 {
		cfg.Scheduler.Cooldown = 5 * time.Second
	}
	if cfg.Scheduler.IndexFile == "" {
		cfg.Scheduler.IndexFile = "outputs/index.jsonl"
	}
	if cfg.Scheduler.OutputDir == "" {
		cfg.Scheduler.OutputDir = "outputs"
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 10 * time.Minute
	}
	if cfg.EventLog.Path == "" {
		cfg.EventLog.Path = "logs/pipeline.jsonl"
	}
	if cfg.Video.Width == 0 {
		cfg.Video.Width = 1080
	}
	if cfg.Video.Height == 0 {
		cfg.Video.Height = 1920
	}
	if cfg.Video.FPS == 0 {
		cfg.Video.FPS = 30
	}
	if cfg.Video.CRF == 0 {
		cfg.Video.CRF = 23
	}
}
