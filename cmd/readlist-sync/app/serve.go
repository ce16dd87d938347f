package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/internal/app"
	"github.com/readlist/readlist-sync/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync service",
		Long: `Start the sync service: the built-in pass schedule (when sync.scheduleInterval
is set) and the HTTP server with the health, status and trigger endpoints.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("report-dir", "", "Directory to store the report of the last pass in")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}
	reportDir, err := cmd.Flags().GetString("report-dir")
	if err != nil {
		return fmt.Errorf("failed to get report-dir flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration", "storage", cfg.GetStorageType())

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	syncApp, err := app.NewSyncApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(address),
		app.WithTelemetry(tel),
		app.WithReportDirectory(reportDir),
	)
	if err != nil {
		return fmt.Errorf("failed to build sync service: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- syncApp.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := syncApp.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
