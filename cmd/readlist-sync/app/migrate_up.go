package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending migrations.

Examples:
  readlist-sync migrate up --config config.yaml --yes`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connStr, err := migrationConnString(cmd)
	if err != nil {
		return err
	}
	if err := confirmMigration(cmd, "This will apply all pending migrations. Continue?"); err != nil {
		return err
	}

	slog.Info("Applying migrations")
	if err := database.MigrateUp(connStr); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("Migration completed successfully")

	logMigrationVersion(connStr)
	return nil
}
