package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/database"
	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/db/auth"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or revert the embedded schema migrations against the configured
PostgreSQL database.`,
	}
	cmd.PersistentFlags().Bool("yes", false, "Skip the confirmation prompt")
	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd())
	return cmd
}

// migrationConnString loads the config and resolves a connection string
// carrying a usable password or IAM token.
func migrationConnString(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.GetStorageType() != config.StorageTypeDatabase || cfg.Database == nil {
		return "", fmt.Errorf("migrations need storage type %q with a database section", config.StorageTypeDatabase)
	}

	connStr, err := auth.ConnectionString(cmd.Context(), cfg.Database)
	if err != nil {
		return "", fmt.Errorf("failed to build connection string: %w", err)
	}
	return connStr, nil
}

func confirmMigration(cmd *cobra.Command, prompt string) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}
	if !confirm(cmd, prompt) {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

func logMigrationVersion(connStr string) {
	version, dirty, err := database.Version(connStr)
	if err != nil {
		slog.Warn("Failed to get migration version", "error", err)
		return
	}
	if dirty {
		slog.Warn("Current migration version is dirty, manual intervention may be required", "version", version)
		return
	}
	slog.Info("Current migration version", "version", version)
}
