package config

import (
	"time"

	redisclient "github.com/automograph/mograph/internal/infra/redis"
	"github.com/automograph/mograph/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Backend   BackendConfig      `yaml:"backend"`
	FFmpeg    FFmpegConfig       `yaml:"ffmpeg"`
	Retry     RetryConfig        `yaml:"retry"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	EventLog  EventLogConfig     `yaml:"event_log"`
	Prompts   PromptConfig       `yaml:"prompts"`
	Video     VideoConfig        `yaml:"video"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds slog configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// BackendConfig points at the generation backend service. Placeholder
// mode renders labeled solid-color clips locally instead of calling the
// backend, for exercising the pipeline without a GPU host.
type BackendConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	Placeholder bool          `yaml:"placeholder"`
}

// FFmpegConfig holds media-processing settings.
type FFmpegConfig struct {
	Path string `yaml:"path"` // empty = FFMPEG_PATH env, then PATH lookup
}

// RetryConfig holds retry/backoff settings shared by all call classes,
// plus the media-processing allow-list.
type RetryConfig struct {
	MaxAttempts   int              `yaml:"max_attempts"`
	BaseDelay     time.Duration    `yaml:"base_delay"`
	BackoffFactor float64          `yaml:"backoff_factor"`
	JitterMax     time.Duration    `yaml:"jitter_max"`
	Media         MediaRetryConfig `yaml:"media"`
}

// MediaRetryConfig restricts which media-processing failures are retried.
type MediaRetryConfig struct {
	Enabled            bool  `yaml:"enabled"`
	RetryableExitCodes []int `yaml:"retryable_exit_codes"`
}

// SchedulerConfig drives batch execution.
type SchedulerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxRetries  int           `yaml:"max_retries"` // whole-job retries after the first run
	IndexFile   string        `yaml:"index_file"`
	OutputDir   string        `yaml:"output_dir"`
	LockTTL     time.Duration `yaml:"lock_ttl"`   // generation resource lock TTL (Redis)
	Retention   time.Duration `yaml:"retention"`  // 0 disables output pruning
}

// EventLogConfig holds the structured event sink settings.
type EventLogConfig struct {
	Path         string   `yaml:"path"`
	RedactFields []string `yaml:"redact_fields"`
}

// PromptConfig feeds the prompt pool.
type PromptConfig struct {
	PoolPath string   `yaml:"pool_path"`
	Styles   []string `yaml:"styles"`
	Tags     []string `yaml:"tags"`
}

// VideoConfig holds output encoding parameters. AudioPath, when set,
// names a background audio track muxed into every final clip.
type VideoConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FPS       int    `yaml:"fps"`
	CRF       int    `yaml:"crf"`
	AudioPath string `yaml:"audio_path"`
}
