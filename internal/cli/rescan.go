package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/automograph/mograph/internal/control"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Re-run every job parked in the Redis failed-jobs queue",
	Run:   runRescan,
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) {
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
		slog.Info("Received signal, cancelling rescan...", "signal", sig)
		cancel()
	}()

	results, summary, err := app.Rescan(ctx)
	if err != nil {
		slog.Error("Rescan failed", "error", err)
		shutdown(app)
		os.Exit(1)
	}
	if summary.Total == 0 {
		fmt.Println("no failed jobs to rescan")
		shutdown(app)
		return
	}

	printSummary(results, summary)
	shutdown(app)

	if summary.Failed > 0 {
		os.Exit(1)
	}
}
