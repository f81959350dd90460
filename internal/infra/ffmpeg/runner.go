// Package ffmpeg wraps media-processing subprocess invocations with
// stderr capture, exit-code classification and allow-list retry.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/automograph/mograph/internal/engine/errclass"
	"github.com/automograph/mograph/internal/engine/retry"
)

// stderrTailLimit bounds how much diagnostic text is kept per failure.
const stderrTailLimit = 2000

// ProcessError is a non-zero ffmpeg exit. It carries the exit code for
// the retry allow-list and the stderr tail for classification.
type ProcessError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.Code)
}

// ExitCode implements retry.ExitCoder.
func (e *ProcessError) ExitCode() int { return e.Code }

// Resolve locates the ffmpeg executable: explicit config path first,
// then the FFMPEG_PATH environment variable, then PATH lookup.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("FFMPEG_PATH"); env != "" {
		return env, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found, install it and add it to PATH: %w", err)
	}
	return path, nil
}

// Runner executes ffmpeg commands under the media retry policy.
type Runner struct {
	path   string
	exec   *retry.Executor
	policy retry.MediaPolicy
}

// NewRunner creates a Runner for the given executable path.
func NewRunner(path string, exec *retry.Executor, policy retry.MediaPolicy) *Runner {
	return &Runner{path: path, exec: exec, policy: policy}
}

// Run executes one ffmpeg command, retrying under the media allow-list.
// The runID correlates the emitted events with the owning job.
func (r *Runner) Run(ctx context.Context, runID string, args []string) error {
	cmdStr := r.path + " " + strings.Join(args, " ")
	_, err := r.exec.Do(ctx, retry.Operation{
		Name:     "ffmpeg",
		Fields:   map[string]any{"command": cmdStr, "run_id": runID},
		Classify: classify,
		Allow:    r.policy.Allow,
		Invoke: func(ctx context.Context) (any, error) {
			return nil, r.runOnce(ctx, args)
		},
	})
	return err
}

func (r *Runner) runOnce(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{
			Args:   args,
			Code:   exitErr.ExitCode(),
			Stderr: tail(stderr.String(), stderrTailLimit),
		}
	}
	// Start failure: the executable itself could not be run.
	return &ProcessError{
		Args:   args,
		Code:   127,
		Stderr: tail(err.Error(), stderrTailLimit),
	}
}

func classify(err error) errclass.Class {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return errclass.ClassifyProcess(pe.Stderr, pe.Code)
	}
	return errclass.ClassifyProcess(err.Error(), -1)
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
