package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/automograph/mograph/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status: backend, content index and failed jobs",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := setup()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer shutdown(app)

	st, err := app.Status(context.Background())
	if err != nil {
		slog.Error("Failed to gather status", "error", err)
		os.Exit(1)
	}

	backend := "unreachable"
	if st.BackendOK {
		backend = "ok"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BACKEND\tINDEX ENTRIES\tFAILED JOBS\tPROMPTS")
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", backend, st.IndexEntries, st.FailedJobs, st.PromptCount)
	_ = w.Flush()
}
