// Package control wires configuration into a runnable pipeline
// application and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/automograph/mograph/internal/core/config"
	"github.com/automograph/mograph/internal/core/domain"
	"github.com/automograph/mograph/internal/core/worker"
	"github.com/automograph/mograph/internal/engine/contentindex"
	"github.com/automograph/mograph/internal/engine/eventlog"
	"github.com/automograph/mograph/internal/engine/retry"
	"github.com/automograph/mograph/internal/infra/backend"
	"github.com/automograph/mograph/internal/infra/ffmpeg"
	"github.com/automograph/mograph/internal/infra/health"
	redisclient "github.com/automograph/mograph/internal/infra/redis"
	"github.com/automograph/mograph/internal/infra/storage/postgres"
	"github.com/automograph/mograph/internal/runner"
)

// App is the assembled pipeline: generation backend, media processing,
// content index, scheduler and health server.
type App struct {
	cfg          config.AppConfig
	backend      *backend.Client
	ffmpeg       *ffmpeg.Runner
	index        contentindex.Index
	events       *eventlog.Logger
	scheduler    *runner.Scheduler
	prompts      *runner.PromptPool
	failedJobs   *redisclient.FailedJobRepo
	redisClient  *redisclient.Client
	db           *postgres.DB
	healthServer *health.Server
}

// New creates an App with all dependencies initialized. Redis and
// PostgreSQL are optional; an empty URL disables each.
func New(cfg config.AppConfig) (*App, error) {
	app := &App{cfg: cfg}

	events, err := eventlog.Open(cfg.EventLog.Path, cfg.EventLog.RedactFields)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	app.events = events

	exec := retry.NewExecutor(retry.Config{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.Retry.BaseDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		JitterMax:     cfg.Retry.JitterMax,
	}, events)

	app.backend = backend.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout, exec)

	ffmpegPath, err := ffmpeg.Resolve(cfg.FFmpeg.Path)
	if err != nil {
		return nil, err
	}
	policy := retry.MediaPolicy{
		Enabled:            cfg.Retry.Media.Enabled,
		RetryableExitCodes: exitCodeSet(cfg.Retry.Media.RetryableExitCodes),
	}
	app.ffmpeg = ffmpeg.NewRunner(ffmpegPath, exec, policy)

	// Content index: PostgreSQL when configured, otherwise the local
	// JSONL file.
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		repo, err := postgres.NewIndexRepo(context.Background(), db)
		if err != nil {
			return nil, err
		}
		app.db = db
		app.index = repo
		slog.Info("Using PostgreSQL content index")
	} else {
		idx, err := contentindex.OpenFile(cfg.Scheduler.IndexFile)
		if err != nil {
			return nil, err
		}
		app.index = idx
		slog.Info("Using file content index", "path", cfg.Scheduler.IndexFile)
	}

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = rc
		app.failedJobs = redisclient.NewFailedJobRepo(rc)
		slog.Info("Redis enabled", "features", "generation lock, failed-jobs queue")
	}

	app.prompts, err = loadPrompts(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	job := &runner.Job{
		Backend:     app.backend,
		FFmpeg:      app.ffmpeg,
		Uploader:    runner.DraftUploader{},
		LockTTL:     cfg.Scheduler.LockTTL,
		Video:       cfg.Video,
		Placeholder: cfg.Backend.Placeholder,
	}
	if app.redisClient != nil {
		job.Locker = app.redisClient
	}

	app.scheduler = runner.NewScheduler(runner.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		Cooldown:    cfg.Scheduler.Cooldown,
		MaxRetries:  cfg.Scheduler.MaxRetries,
	}, job.Run, app.index, events, app.failedJobs)

	var redisCheck, dbCheck health.Checker
	if app.redisClient != nil {
		redisCheck = app.redisClient
	}
	if app.db != nil {
		dbCheck = app.db
	}
	var failedCount health.Counter
	if app.failedJobs != nil {
		failedCount = app.failedJobs
	}
	monitor := health.NewMonitor(app.backend, redisCheck, dbCheck, app.index, failedCount)
	app.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return app, nil
}

func exitCodeSet(codes []int) map[int]bool {
	if len(codes) == 0 {
		return retry.DefaultMediaExitCodes
	}
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func loadPrompts(cfg config.PromptConfig) (*runner.PromptPool, error) {
	var texts []string
	if cfg.PoolPath != "" {
		var err error
		texts, err = runner.LoadPromptFile(cfg.PoolPath)
		if err != nil {
			return nil, err
		}
	}
	return runner.NewPromptPool(texts, cfg.Styles, cfg.Tags), nil
}

// Start starts the health/metrics server and background workers.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	pruner := worker.NewPruner(a.cfg.Scheduler.OutputDir, a.cfg.Scheduler.Retention)
	go pruner.Start(ctx)
	return nil
}

// Stop shuts the app down, flushing the event log and index.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.healthServer.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := a.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.events.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// RunBatch samples count prompts and executes them as one batch.
func (a *App) RunBatch(ctx context.Context, count int) ([]domain.JobResult, domain.BatchSummary, error) {
	specs := make([]domain.JobSpec, 0, count)
	for i := 0; i < count; i++ {
		prompt, err := a.prompts.SampleCombo()
		if err != nil {
			return nil, domain.BatchSummary{}, err
		}
		specs = append(specs, a.newSpec(prompt))
	}
	results, summary := a.scheduler.RunBatch(ctx, specs)
	return results, summary, nil
}

// Rescan drains the Redis failed-jobs queue and re-runs every parked
// job as one batch.
func (a *App) Rescan(ctx context.Context) ([]domain.JobResult, domain.BatchSummary, error) {
	if a.failedJobs == nil {
		return nil, domain.BatchSummary{}, fmt.Errorf("rescan requires redis")
	}

	var specs []domain.JobSpec
	for {
		fj, err := a.failedJobs.Pop(ctx)
		if err != nil {
			return nil, domain.BatchSummary{}, err
		}
		if fj == nil {
			break
		}
		// Fresh run ID and output dir so the replay does not collide
		// with the failed run's leftovers.
		spec := fj.Spec
		spec.RunID = uuid.NewString()
		spec.OutputDir = filepath.Join(a.cfg.Scheduler.OutputDir, spec.RunID)
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, domain.BatchSummary{}, nil
	}

	results, summary := a.scheduler.RunBatch(ctx, specs)
	return results, summary, nil
}

// Status reports the pipeline state for the status command.
type Status struct {
	IndexEntries int
	FailedJobs   int
	PromptCount  int
	BackendOK    bool
}

// Status probes the backend and gathers queue and index sizes.
func (a *App) Status(ctx context.Context) (Status, error) {
	st := Status{
		IndexEntries: a.index.Len(),
		PromptCount:  a.prompts.Size(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st.BackendOK = a.backend.Health(probeCtx) == nil

	if a.failedJobs != nil {
		count, err := a.failedJobs.Count(ctx)
		if err != nil {
			return st, err
		}
		st.FailedJobs = count
	}
	return st, nil
}

func (a *App) newSpec(prompt string) domain.JobSpec {
	runID := uuid.NewString()
	return domain.JobSpec{
		RunID:     runID,
		Prompt:    prompt,
		Title:     title(prompt),
		Seed:      -1,
		OutputDir: filepath.Join(a.cfg.Scheduler.OutputDir, runID),
	}
}

// title derives a short human-readable title from the prompt's text
// part.
func title(prompt string) string {
	if text, _, found := strings.Cut(prompt, "|"); found {
		return strings.TrimSpace(text)
	}
	if len(prompt) > 60 {
		return prompt[:60]
	}
	return prompt
}
