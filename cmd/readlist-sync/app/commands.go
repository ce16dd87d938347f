// Package app provides the command line interface of the sync service.
package app

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/versions"
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "readlist-sync",
		DisableAutoGenTag: true,
		Short:             "Incremental reading-list sync service",
		Long: `readlist-sync mirrors each enabled user's remote reading library into a
local PostgreSQL cache, resuming across invocations under a per-user request budget.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "",
		"Path to configuration file (YAML format), defaults to $"+config.EnvPrefix+"_CONFIG")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newEnableCmd(),
		newDisableCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "readlist-sync %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
