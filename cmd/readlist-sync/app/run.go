package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/internal/api"
	"github.com/readlist/readlist-sync/internal/app"
	"github.com/readlist/readlist-sync/internal/status"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass and exit",
		Long: `Run a single sync pass over every eligible user and print the per-user
results as JSON. Suitable for an external scheduler such as a cron job.`,
		RunE: runOnce,
	}
	cmd.Flags().String("report-dir", "", "Directory to store the pass report in")
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportDir, err := cmd.Flags().GetString("report-dir")
	if err != nil {
		return fmt.Errorf("failed to get report-dir flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	components, err := app.NewComponents(ctx,
		app.WithConfig(cfg),
		app.WithReportDirectory(reportDir),
	)
	if err != nil {
		return fmt.Errorf("failed to build sync components: %w", err)
	}
	defer components.Cleanup()

	report, err := components.SyncCoordinator.RunPass(ctx)
	if err != nil {
		return fmt.Errorf("sync pass failed: %w", err)
	}

	results := report.Results
	if results == nil {
		results = []status.UserResult{}
	}
	return writeJSON(cmd, api.RunResponse{Results: results})
}
