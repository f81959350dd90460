package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Pruner deletes old output run directories based on retention policy.
// Index entries are never pruned; only the media files on disk are.
type Pruner struct {
	outputDir string
	retention time.Duration
}

// NewPruner creates a new Pruner worker.
func NewPruner(outputDir string, retention time.Duration) *Pruner {
	return &Pruner{outputDir: outputDir, retention: retention}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	threshold := time.Now().Add(-p.retention)

	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Pruner failed to read output dir", "dir", p.outputDir, "error", err)
		}
		return
	}

	pruned := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(threshold) {
			continue
		}
		path := filepath.Join(p.outputDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Error("Pruner failed to remove run dir", "path", path, "error", err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		slog.Info("Pruned old run directories", "count", pruned, "retention", p.retention)
	}
}
