// Package auth provides dynamic database authentication.
package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/db/auth/aws"
)

// NewDynamicAuth returns a pgx BeforeConnect hook for the configured
// dynamic auth method, or nil when none is configured.
func NewDynamicAuth(ctx context.Context, cfg *config.DatabaseConfig) (func(context.Context, *pgx.ConnConfig) error, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return nil, nil
	}
	if cfg.DynamicAuth.AWSRDSIAM != nil {
		return aws.PgxAuthFunc(ctx, cfg)
	}
	return nil, fmt.Errorf("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")
}

// ConnectionString returns a connection string with a usable password for
// clients that open their own connections, such as migrations. Dynamic auth
// tokens are short-lived so the result should be used right away.
func ConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return cfg.GetConnectionString()
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return "", fmt.Errorf("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")
	}

	token, err := aws.NewToken(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token: %w", err)
	}
	return cfg.BuildConnectionStringWithAuth(token), nil
}
