package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/readlist/readlist-sync/internal/app/storage"
	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/sync/state"
)

// configPath resolves --config, falling back to READLIST_SYNC_CONFIG.
func configPath(cmd *cobra.Command) string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	if err := v.BindEnv("config"); err != nil {
		return ""
	}
	if f := cmd.Flag("config"); f != nil {
		if err := v.BindPFlag("config", f); err != nil {
			return ""
		}
	}
	return v.GetString("config")
}

// loadConfig loads the file named by --config, or environment only when
// no file is given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var opts []config.Option
	if path := configPath(cmd); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openStore creates the state store of the configured backend. The caller
// must call Cleanup on the returned factory.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, storage.Factory, error) {
	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := factory.CreateStateStore(ctx)
	if err != nil {
		factory.Cleanup()
		return nil, nil, err
	}
	return store, factory, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (yes/no): ", prompt)
	return readAnswer(cmd.InOrStdin())
}

func readAnswer(in io.Reader) bool {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}
