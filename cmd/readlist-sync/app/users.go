package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/credentials"
	"github.com/readlist/readlist-sync/internal/status"
	"github.com/readlist/readlist-sync/internal/sync/state"
)

// tokenEnvVar holds the Content API token for the enable command when
// --token-file is not given.
const tokenEnvVar = config.EnvPrefix + "_CONTENT_API_TOKEN"

func newEnableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable USER_ID",
		Short: "Enable sync for a user",
		Long: `Store the user's Content API token, encrypted with the configured key, and
create an empty sync state so the next pass starts the initial backfill.

The token is read from --token-file or the ` + tokenEnvVar + ` environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: runEnable,
	}
	cmd.Flags().String("token-file", "", "File holding the user's Content API token")
	return cmd
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable USER_ID",
		Short: "Disable sync for a user",
		Long:  `Remove the user's sync state and stored token. Cached documents are kept.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runDisable,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status USER_ID",
		Short: "Print a user's sync status as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func parseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user id must be a UUID: %w", err)
	}
	return id, nil
}

func readToken(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("token-file")
	if err != nil {
		return "", fmt.Errorf("failed to get token-file flag: %w", err)
	}

	var token string
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is provided by the operator
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		token = string(data)
	} else {
		token = os.Getenv(tokenEnvVar)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("no token given: set --token-file or %s", tokenEnvVar)
	}
	return token, nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	token, err := readToken(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	key, err := cfg.Encryption.GetKey()
	if err != nil {
		return err
	}
	cipher, err := credentials.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create credential cipher: %w", err)
	}
	sealed, err := cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	ctx := cmd.Context()
	store, factory, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer factory.Cleanup()

	if err := store.Enable(ctx, userID, sealed); err != nil {
		return fmt.Errorf("failed to enable sync: %w", err)
	}
	slog.Info("Sync enabled", "user_id", userID)
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, factory, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer factory.Cleanup()

	if err := store.Disable(ctx, userID); err != nil {
		return fmt.Errorf("failed to disable sync: %w", err)
	}
	slog.Info("Sync disabled", "user_id", userID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, factory, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer factory.Cleanup()

	st, err := store.Get(ctx, userID)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("sync is not enabled for user %s", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	return writeJSON(cmd, status.UserSyncStatus{
		UserID:        st.UserID,
		InProgress:    st.InProgress,
		LastSyncAt:    st.LastSyncAt,
		NextAllowedAt: st.NextAllowedAt,
	})
}
