package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/automograph/mograph/internal/control"
	"github.com/automograph/mograph/internal/core/config"
	"github.com/automograph/mograph/internal/core/domain"
)

var (
	cfgPath  string
	isDebug  bool
	jobCount int
)

var rootCmd = &cobra.Command{
	Use:   "mograph",
	Short: "Mograph media-generation pipeline",
	Long:  `Mograph generates short vertical videos from a prompt pool, retrying external calls and deduplicating output by content fingerprint.`,
	Run:   runBatch,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().IntVar(&jobCount, "count", 1, "number of jobs in the batch")
}

// setup loads the environment and config and initializes logging. Every
// subcommand starts here.
func setup() config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	return *cfg
}

func runBatch(cmd *cobra.Command, args []string) {
	cfg := setup()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, cancelling batch...", "signal", sig)
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start pipeline", "error", err)
		os.Exit(1)
	}

	slog.Info("Batch starting", "count", jobCount, "config", cfgPath)
	results, summary, err := app.RunBatch(ctx, jobCount)
	if err != nil {
		slog.Error("Batch failed", "error", err)
		shutdown(app)
		os.Exit(1)
	}

	printSummary(results, summary)
	shutdown(app)

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func shutdown(app *control.App) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

func printSummary(results []domain.JobResult, summary domain.BatchSummary) {
	for _, r := range results {
		switch r.Status {
		case domain.StatusSuccess:
			slog.Info("Job succeeded", "run_id", r.Spec.RunID, "artifact", r.ArtifactPath, "duration", r.Duration)
		case domain.StatusSkippedDuplicate:
			slog.Info("Job skipped, duplicate content", "run_id", r.Spec.RunID, "artifact", r.ArtifactPath)
		default:
			slog.Error("Job failed", "run_id", r.Spec.RunID, "category", r.Category, "hint", r.Hint, "error", r.RawError)
		}
	}
	fmt.Printf("batch done: %d total, %d success, %d failed, %d skipped\n",
		summary.Total, summary.Success, summary.Failed, summary.SkippedDuplicate)
}
