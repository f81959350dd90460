// Package retry drives fallible external calls (generation backend HTTP
// calls, media-processing subprocesses) through classification-driven
// retry with exponential backoff and structured per-attempt logging.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/automograph/mograph/internal/engine/errclass"
	"github.com/automograph/mograph/internal/engine/eventlog"
	"github.com/automograph/mograph/internal/metrics"
)

// Operation describes one logical call to drive through retries.
type Operation struct {
	// Name prefixes the emitted event names: <Name>_start, <Name>_success,
	// <Name>_fail, <Name>_retry.
	Name string
	// Fields is flat correlation context attached to every event for this
	// operation (run_id plus command/fn/provider).
	Fields map[string]any
	// Invoke performs one attempt.
	Invoke func(ctx context.Context) (any, error)
	// Classify maps an attempt failure onto the error taxonomy. Required.
	Classify func(err error) errclass.Class
	// Allow, when set, overrides the category's default retryability for
	// this call class (e.g. the media-processing allow-list).
	Allow func(cls errclass.Class, err error) bool
	// Quiet suppresses the per-attempt start and success events. Failure
	// and retry events are always written.
	Quiet bool
}

// ExhaustedError is the terminal failure of an operation: either retries
// ran out or the failure was classified non-retryable.
type ExhaustedError struct {
	Op       string
	Category errclass.Category
	Hint     string
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v", e.Op, e.Attempts, e.Category, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Executor runs operations under one retry configuration. It is safe for
// concurrent use.
type Executor struct {
	cfg    Config
	policy *Policy
	log    *eventlog.Logger
}

// NewExecutor creates an Executor with a time-seeded jitter source.
func NewExecutor(cfg Config, log *eventlog.Logger) *Executor {
	return NewExecutorWithSource(cfg, log, rand.NewSource(time.Now().UnixNano()))
}

// NewExecutorWithSource creates an Executor with a deterministic jitter
// source, for tests.
func NewExecutorWithSource(cfg Config, log *eventlog.Logger, src rand.Source) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{cfg: cfg, policy: NewPolicyWithSource(cfg, src), log: log}
}

// Do invokes the operation until it succeeds, its retries are exhausted,
// or its failure is classified non-retryable. The wrapped call runs at
// most MaxAttempts times and never again after the terminal result. The
// backoff wait is context-aware; cancellation stops further attempts.
func (e *Executor) Do(ctx context.Context, op Operation) (any, error) {
	maxAttempts := e.cfg.MaxAttempts
	var lastErr error
	var lastCls errclass.Class

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !op.Quiet {
			e.log.Log(eventlog.Event{
				Name:        op.Name + "_start",
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Fields:      op.Fields,
			})
		}
		metrics.AttemptsTotal.WithLabelValues(op.Name).Inc()

		start := time.Now()
		result, err := op.Invoke(ctx)
		elapsed := time.Since(start)

		if err == nil {
			if !op.Quiet {
				e.log.Log(eventlog.Event{
					Name:      op.Name + "_success",
					Attempt:   attempt,
					ElapsedMS: elapsed.Milliseconds(),
					Fields:    op.Fields,
				})
			}
			return result, nil
		}

		lastErr = err
		lastCls = e.classify(op, err)
		e.log.Log(eventlog.Event{
			Name:        op.Name + "_fail",
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			ElapsedMS:   elapsed.Milliseconds(),
			Category:    string(lastCls.Category),
			Hint:        lastCls.Hint,
			Error:       err.Error(),
			Fields:      op.Fields,
		})

		retryable := lastCls.Retryable
		if op.Allow != nil {
			retryable = op.Allow(lastCls, err)
		}
		if attempt == maxAttempts || !retryable {
			metrics.ExhaustedTotal.WithLabelValues(op.Name, string(lastCls.Category)).Inc()
			return nil, &ExhaustedError{
				Op:       op.Name,
				Category: lastCls.Category,
				Hint:     lastCls.Hint,
				Attempts: attempt,
				LastErr:  err,
			}
		}

		delay := e.policy.Delay(attempt)
		e.log.Log(eventlog.Event{
			Name:        op.Name + "_retry",
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Category:    string(lastCls.Category),
			Hint:        lastCls.Hint,
			NextDelayMS: delay.Milliseconds(),
			Fields:      op.Fields,
		})
		metrics.RetriesTotal.WithLabelValues(op.Name, string(lastCls.Category)).Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	// Unreachable: the loop always returns from inside.
	return nil, &ExhaustedError{
		Op: op.Name, Category: lastCls.Category, Hint: lastCls.Hint,
		Attempts: maxAttempts, LastErr: lastErr,
	}
}

func (e *Executor) classify(op Operation, err error) errclass.Class {
	if op.Classify == nil {
		return errclass.Lookup(errclass.Unknown)
	}
	return op.Classify(err)
}

// ExitCoder is implemented by process failures that carry an exit code,
// such as ffmpeg.ProcessError.
type ExitCoder interface {
	ExitCode() int
}

// MediaPolicy is the retry allow-list for media-processing calls: retry
// only when enabled, and only for configured exit codes or one of the
// always-retryable categories.
type MediaPolicy struct {
	Enabled            bool
	RetryableExitCodes map[int]bool
}

// DefaultMediaExitCodes are the exit codes retried when no explicit set
// is configured.
var DefaultMediaExitCodes = map[int]bool{1: true, 255: true}

// Allow reports whether a classified media-processing failure may be
// retried under this policy.
func (p MediaPolicy) Allow(cls errclass.Class, err error) bool {
	if !p.Enabled {
		return false
	}
	var ec ExitCoder
	if errors.As(err, &ec) && p.RetryableExitCodes[ec.ExitCode()] {
		return true
	}
	switch cls.Category {
	case errclass.Timeout, errclass.ResourceBusy, errclass.BrokenPipe, errclass.IOError:
		return true
	}
	return false
}
