// Package aws implements dynamic authentication for AWS RDS IAM.
package aws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/readlist/readlist-sync/internal/config"
)

const (
	regionDetect = "detect"
	imdsTimeout  = 2 * time.Second
)

// region returns the configured region, asking the instance metadata
// service when it is "detect".
func region(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	configured := cfg.DynamicAuth.AWSRDSIAM.Region
	if configured == "" {
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	}
	if configured != regionDetect {
		return configured, nil
	}

	client := imds.New(imds.Options{
		HTTPClient: &http.Client{Timeout: imdsTimeout},
	})
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get region from IMDS: %w", err)
	}
	return out.Region, nil
}

func token(ctx context.Context, cfg *config.DatabaseConfig, region string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tok, err := auth.BuildAuthToken(ctx, endpoint, region, cfg.User, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token: %w", err)
	}
	return tok, nil
}

// NewToken returns a fresh RDS IAM token for the configured user.
func NewToken(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	r, err := region(ctx, cfg)
	if err != nil {
		return "", err
	}
	return token(ctx, cfg, r)
}

// PgxAuthFunc returns a BeforeConnect hook that sets a fresh token as the
// password of every new connection. The region is resolved once.
func PgxAuthFunc(ctx context.Context, cfg *config.DatabaseConfig) (func(context.Context, *pgx.ConnConfig) error, error) {
	r, err := region(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, connConfig *pgx.ConnConfig) error {
		tok, err := token(ctx, cfg, r)
		if err != nil {
			return err
		}
		connConfig.Password = tok
		return nil
	}, nil
}
