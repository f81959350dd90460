package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/automograph/mograph/internal/core/domain"
	"github.com/automograph/mograph/internal/engine/contentindex"
	"github.com/automograph/mograph/internal/engine/eventlog"
	"github.com/automograph/mograph/internal/engine/retry"
	"github.com/automograph/mograph/internal/infra/redis"
	"github.com/automograph/mograph/internal/metrics"
)

// Config controls batch execution.
type Config struct {
	// Concurrency is the number of jobs running at once.
	Concurrency int
	// Cooldown is the pause a worker takes between consecutive jobs and
	// between scheduler-level retries of the same job.
	Cooldown time.Duration
	// MaxRetries is how many times a failed job is re-run beyond its
	// first execution. Retries here are whole-job; individual external
	// calls inside a job carry their own retry budget.
	MaxRetries int
}

// JobFunc runs one pipeline job and returns its artifact.
type JobFunc func(ctx context.Context, spec domain.JobSpec) (*domain.Artifact, error)

// Scheduler fans a batch of job specs over a fixed worker pool and
// collects results in submission order.
type Scheduler struct {
	cfg    Config
	run    JobFunc
	index  contentindex.Index
	log    *eventlog.Logger
	failed *redis.FailedJobRepo // nil = terminal failures are not parked
}

// NewScheduler builds a scheduler. index and log may not be nil; failed
// may be nil when no Redis is configured.
func NewScheduler(cfg Config, run JobFunc, index contentindex.Index, log *eventlog.Logger, failed *redis.FailedJobRepo) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{cfg: cfg, run: run, index: index, log: log, failed: failed}
}

type task struct {
	pos  int
	spec domain.JobSpec
}

// RunBatch executes every spec and returns one result per spec, in
// submission order. A cancelled context stops dispatch; jobs that never
// ran are reported as failed with the cancellation recorded. RunBatch
// itself never returns an error: per-job outcomes live in the results.
func (s *Scheduler) RunBatch(ctx context.Context, specs []domain.JobSpec) ([]domain.JobResult, domain.BatchSummary) {
	started := time.Now()
	s.log.Log(eventlog.Event{
		Name:      "batch_start",
		Timestamp: started,
		Fields:    map[string]any{"total": len(specs), "concurrency": s.cfg.Concurrency},
	})

	results := make([]domain.JobResult, len(specs))
	tasks := make(chan task)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, tasks, results)
		}()
	}

	// Dispatch stops as soon as the context is cancelled; remaining
	// slots keep their zero value and are marked below.
dispatch:
	for i, spec := range specs {
		select {
		case tasks <- task{pos: i, spec: spec}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	var summary domain.BatchSummary
	summary.Total = len(specs)
	for i := range results {
		if results[i].Status == "" {
			results[i] = domain.JobResult{
				Spec:     specs[i],
				Status:   domain.StatusFailed,
				Category: "cancelled",
				RawError: "batch cancelled",
			}
		}
		switch results[i].Status {
		case domain.StatusSuccess:
			summary.Success++
		case domain.StatusSkippedDuplicate:
			summary.SkippedDuplicate++
		default:
			summary.Failed++
		}
	}

	s.log.Log(eventlog.Event{
		Name:      "batch_complete",
		Timestamp: time.Now(),
		ElapsedMS: time.Since(started).Milliseconds(),
		Fields: map[string]any{
			"total":             summary.Total,
			"success":           summary.Success,
			"failed":            summary.Failed,
			"skipped_duplicate": summary.SkippedDuplicate,
		},
	})
	return results, summary
}

func (s *Scheduler) worker(ctx context.Context, tasks <-chan task, results []domain.JobResult) {
	first := true
	for t := range tasks {
		if !first && !s.sleep(ctx, s.cfg.Cooldown) {
			return
		}
		first = false
		results[t.pos] = s.runJob(ctx, t.spec)
	}
}

// runJob executes one spec with up to MaxRetries re-runs and records the
// outcome in the content index.
func (s *Scheduler) runJob(ctx context.Context, spec domain.JobSpec) domain.JobResult {
	started := time.Now()
	s.log.Log(eventlog.Event{
		Name:      "job_start",
		Timestamp: started,
		Fields:    map[string]any{"run_id": spec.RunID, "title": spec.Title},
	})

	var artifact *domain.Artifact
	var err error
	attempts := 0
	for try := 0; try <= s.cfg.MaxRetries; try++ {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		attempts++
		artifact, err = s.run(ctx, spec)
		if err == nil {
			break
		}
		if try < s.cfg.MaxRetries {
			slog.Warn("job failed, re-running",
				"run_id", spec.RunID, "try", try+1, "max_retries", s.cfg.MaxRetries, "error", err)
			if !s.sleep(ctx, s.cfg.Cooldown) {
				break
			}
		}
	}

	result := domain.JobResult{
		Spec:     spec,
		Attempts: attempts,
		Duration: time.Since(started),
	}
	if err != nil {
		result.Status = domain.StatusFailed
		result.RawError = err.Error()
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			result.Category = string(exhausted.Category)
			result.Hint = exhausted.Hint
		}
		s.park(ctx, &result)
		s.finish(&result)
		return result
	}

	s.record(ctx, artifact, &result)
	s.finish(&result)
	return result
}

// record fingerprints the artifact and inserts it into the content
// index; an already-known fingerprint downgrades the job to
// skipped_duplicate while keeping the artifact path visible.
func (s *Scheduler) record(ctx context.Context, artifact *domain.Artifact, result *domain.JobResult) {
	result.ArtifactPath = artifact.Path

	hash, err := contentindex.Fingerprint(artifact.Path)
	if err != nil {
		result.Status = domain.StatusFailed
		result.RawError = err.Error()
		return
	}
	entry := domain.IndexEntry{
		ContentHash:  hash,
		CreatedAt:    time.Now().UTC(),
		SourceParams: artifact.SourceParams,
		ArtifactPath: artifact.Path,
		Upload:       artifact.Upload,
	}
	// A job that finished before cancellation still gets recorded.
	inserted, err := s.index.RecordIfNew(context.WithoutCancel(ctx), entry)
	if err != nil {
		result.Status = domain.StatusFailed
		result.RawError = err.Error()
		return
	}
	if !inserted {
		result.Status = domain.StatusSkippedDuplicate
		return
	}
	result.Status = domain.StatusSuccess
	result.Entry = &entry
}

// park stores a terminally failed job in Redis for a later rescan.
func (s *Scheduler) park(ctx context.Context, result *domain.JobResult) {
	if s.failed == nil {
		return
	}
	fj := &redis.FailedJob{
		Spec:     result.Spec,
		Category: result.Category,
		RawError: result.RawError,
		FailedAt: time.Now().UTC(),
	}
	if err := s.failed.Add(context.WithoutCancel(ctx), fj); err != nil {
		slog.Warn("failed to park failed job", "run_id", result.Spec.RunID, "error", err)
	}
}

func (s *Scheduler) finish(result *domain.JobResult) {
	metrics.JobsTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.JobDuration.Observe(result.Duration.Seconds())

	name := "job_success"
	switch result.Status {
	case domain.StatusFailed:
		name = "job_fail"
	case domain.StatusSkippedDuplicate:
		name = "job_skipped_duplicate"
	}
	s.log.Log(eventlog.Event{
		Name:      name,
		Timestamp: time.Now(),
		ElapsedMS: result.Duration.Milliseconds(),
		Attempt:   result.Attempts,
		Category:  result.Category,
		Hint:      result.Hint,
		Error:     result.RawError,
		Fields:    map[string]any{"run_id": result.Spec.RunID, "artifact": result.ArtifactPath},
	})
}

// sleep waits d unless the context ends first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
