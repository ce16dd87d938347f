package app

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/database"
)

func newMigrateDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Long: `Revert schema migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Revert one step
  readlist-sync migrate down --config config.yaml --num-steps 1 --yes

  # Revert everything (WARNING: destroys all data)
  readlist-sync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
	cmd.Flags().Uint("num-steps", 0, "Number of migrations to revert (0 reverts all)")
	return cmd
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	connStr, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	prompt := "WARNING: This will revert ALL migrations and delete all data. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will revert %d migration(s) and may result in data loss. Continue?", numSteps)
	}
	if err := confirmMigration(cmd, prompt); err != nil {
		return err
	}

	if numSteps == 0 {
		slog.Warn("Reverting all migrations")
	} else {
		slog.Info("Reverting migrations", "steps", numSteps)
	}
	if err := database.MigrateDown(connStr, int(numSteps)); err != nil { // #nosec G115 -- bounded above
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("Migration completed successfully")

	logMigrationVersion(connStr)
	return nil
}
