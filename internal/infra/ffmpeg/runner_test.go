package ffmpeg

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/automograph/mograph/internal/engine/errclass"
	"github.com/automograph/mograph/internal/engine/retry"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRunner(t *testing.T, path string, maxAttempts int, policy retry.MediaPolicy) *Runner {
	t.Helper()
	exec := retry.NewExecutorWithSource(retry.Config{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2.0,
	}, nil, rand.NewSource(1))
	return NewRunner(path, exec, policy)
}

func TestRunSuccess(t *testing.T) {
	path := writeScript(t, "exit 0\n")
	r := newRunner(t, path, 3, retry.MediaPolicy{})
	if err := r.Run(context.Background(), "run-1", []string{"-version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Full disk with retry disabled: one attempt, classified disk_full.
func TestRunDiskFullIsTerminal(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "calls")
	t.Setenv("FAKE_FFMPEG_CALLS", marker)
	path := writeScript(t, `echo attempt >> "$FAKE_FFMPEG_CALLS"
echo "av_interleaved_write_frame(): No space left on device" >&2
exit 5
`)

	r := newRunner(t, path, 3, retry.MediaPolicy{Enabled: false})
	err := r.Run(context.Background(), "run-1", []string{"-i", "in.mp4", "out.mp4"})

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *retry.ExhaustedError, got %v", err)
	}
	if exhausted.Category != errclass.DiskFull {
		t.Errorf("category = %s, want %s", exhausted.Category, errclass.DiskFull)
	}
	if exhausted.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", exhausted.Attempts)
	}
	data, _ := os.ReadFile(marker)
	if got := len(data); got != len("attempt\n") {
		t.Errorf("process ran more than once: %q", data)
	}
}

// Exit code 255 is allow-listed: the command is retried and succeeds.
func TestRunRetriesAllowListedExitCode(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran-once")
	t.Setenv("FAKE_FFMPEG_MARKER", marker)
	path := writeScript(t, `if [ -f "$FAKE_FFMPEG_MARKER" ]; then exit 0; fi
touch "$FAKE_FFMPEG_MARKER"
echo "transient encoder failure" >&2
exit 255
`)

	policy := retry.MediaPolicy{Enabled: true, RetryableExitCodes: retry.DefaultMediaExitCodes}
	r := newRunner(t, path, 3, policy)
	if err := r.Run(context.Background(), "run-1", []string{"-i", "in.mp4", "out.mp4"}); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
}

// Exit code 13 with unrecognized stderr: unknown, never retried even
// with retry enabled and max_attempts=3.
func TestRunUnknownExitCodeExhaustsImmediately(t *testing.T) {
	path := writeScript(t, `echo "some obscure diagnostic" >&2
exit 13
`)
	policy := retry.MediaPolicy{Enabled: true, RetryableExitCodes: retry.DefaultMediaExitCodes}
	r := newRunner(t, path, 3, policy)
	err := r.Run(context.Background(), "run-1", []string{"-i", "in.mp4", "out.mp4"})

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if exhausted.Category != errclass.Unknown {
		t.Errorf("category = %s, want %s", exhausted.Category, errclass.Unknown)
	}
	if exhausted.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", exhausted.Attempts)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	r := newRunner(t, filepath.Join(t.TempDir(), "does-not-exist"), 3, retry.MediaPolicy{})
	err := r.Run(context.Background(), "run-1", []string{"-version"})

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if exhausted.Category != errclass.MissingExecutable {
		t.Errorf("category = %s, want %s", exhausted.Category, errclass.MissingExecutable)
	}
}

func TestResolvePrecedence(t *testing.T) {
	if got, err := Resolve("/opt/ffmpeg/bin/ffmpeg"); err != nil || got != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("explicit path not honored: %q %v", got, err)
	}

	t.Setenv("FFMPEG_PATH", "/usr/local/bin/ffmpeg-env")
	if got, err := Resolve(""); err != nil || got != "/usr/local/bin/ffmpeg-env" {
		t.Errorf("FFMPEG_PATH not honored: %q %v", got, err)
	}
}
