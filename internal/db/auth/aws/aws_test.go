package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readlist/readlist-sync/internal/config"
)

func TestRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		region     string
		wantRegion string
		wantErr    string
	}{
		{name: "static region", region: "eu-west-1", wantRegion: "eu-west-1"},
		{name: "empty region", region: "", wantErr: "region is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.DatabaseConfig{
				Host:     "db.internal",
				Port:     5432,
				User:     "sync",
				Database: "readlist",
				DynamicAuth: &config.DynamicAuthConfig{
					AWSRDSIAM: &config.DynamicAuthAWSRDSIAM{Region: tt.region},
				},
			}

			got, err := region(context.Background(), cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRegion, got)
		})
	}
}
