package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/automograph/mograph/internal/control"
	"github.com/automograph/mograph/internal/core/config"
	"github.com/automograph/mograph/internal/core/domain"
)

// fakeBackend serves both generation endpoints with canned media.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	encoded := base64.StdEncoding.EncodeToString([]byte("canned media payload"))
	mux := http.NewServeMux()
	mux.HandleFunc("/sdapi/v1/txt2img", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"images": []string{encoded}})
	})
	mux.HandleFunc("/api/v1/img2vid", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"video": encoded})
	})
	mux.HandleFunc("/internal/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fakeFFmpeg echoes distinct bytes into the output path (the last
// argument of every command) so artifacts get unique fingerprints.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\nhead -c 16 /dev/urandom > \"$last\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	dir := t.TempDir()

	prompts := filepath.Join(dir, "prompts.txt")
	if err := os.WriteFile(prompts, []byte("a foggy harbor at dawn\nneon city rain\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := *config.Default()
	cfg.Server.Port = 0 // random free port
	cfg.Backend.URL = fakeBackend(t).URL
	cfg.Backend.Timeout = 5 * time.Second
	cfg.FFmpeg.Path = fakeFFmpeg(t)
	cfg.EventLog.Path = filepath.Join(dir, "events.jsonl")
	cfg.Scheduler.IndexFile = filepath.Join(dir, "index.jsonl")
	cfg.Scheduler.OutputDir = filepath.Join(dir, "outputs")
	cfg.Scheduler.Concurrency = 2
	cfg.Prompts.PoolPath = prompts
	cfg.Prompts.Styles = []string{"cinematic"}
	return cfg
}

func TestBatchEndToEnd(t *testing.T) {
	app, err := control.New(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, summary, err := app.RunBatch(ctx, 3)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Total != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for i, r := range results {
		if r.Status != domain.StatusSuccess && r.Status != domain.StatusSkippedDuplicate {
			t.Fatalf("job %d: %s (%s)", i, r.Status, r.RawError)
		}
		if _, err := os.Stat(r.ArtifactPath); err != nil {
			t.Fatalf("job %d artifact missing: %v", i, err)
		}
	}

	st, err := app.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.BackendOK {
		t.Error("backend should be healthy")
	}
	if st.IndexEntries != summary.Success {
		t.Errorf("index entries %d, want %d", st.IndexEntries, summary.Success)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestGracefulShutdown(t *testing.T) {
	app, err := control.New(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the background workers come up, then trigger shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
