package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		yamlContent string
		verify      func(t *testing.T, cfg *Config)
		wantErr     string
	}{
		{
			name: "full_config",
			yamlContent: `storage: database
database:
  host: db.internal
  port: 5432
  user: sync
  database: readlist
  sslMode: verify-full
contentApi:
  baseUrl: https://content.example.com
  timeout: 20s
  breaker:
    consecutiveFailures: 3
    openTimeout: 1m
sync:
  locations: [archive, inbox]
  pageSize: 50
  requestLimit: 10
  window: 30s
  staleLockAfter: 5m
  minInterval: 15m
  concurrency: 8
  schedule:
    enabled: true
    interval: 2m
trigger:
  secret: s3cret
encryption:
  key: k3y`,
			verify: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, StorageTypeDatabase, cfg.GetStorageType())
				require.NotNil(t, cfg.Database)
				assert.Equal(t, "db.internal", cfg.Database.Host)
				assert.Equal(t, "https://content.example.com", cfg.ContentAPI.GetBaseURL())
				assert.Equal(t, 20*time.Second, cfg.ContentAPI.GetTimeout())

				breaker := cfg.ContentAPI.GetBreakerSettings()
				require.NotNil(t, breaker)
				assert.Equal(t, uint32(3), breaker.ConsecutiveFailures)
				assert.Equal(t, time.Minute, breaker.Timeout)

				// Priority order wins over the listed order.
				assert.Equal(t,
					[]contentapi.Location{contentapi.LocationInbox, contentapi.LocationArchive},
					cfg.Sync.GetLocations())
				assert.Equal(t, 50, cfg.Sync.GetPageSize())
				assert.Equal(t, 10, cfg.Sync.GetRequestLimit())
				assert.Equal(t, 30*time.Second, cfg.Sync.GetWindow())
				assert.Equal(t, 5*time.Minute, cfg.Sync.GetStaleLockAfter())
				assert.Equal(t, 15*time.Minute, cfg.Sync.GetMinInterval())
				assert.Equal(t, 8, cfg.Sync.GetConcurrency())
				assert.True(t, cfg.Sync.ScheduleEnabled())
				assert.Equal(t, 2*time.Minute, cfg.Sync.GetScheduleInterval())
			},
		},
		{
			name:        "memory_defaults",
			yamlContent: `storage: memory`,
			verify: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, StorageTypeMemory, cfg.GetStorageType())
				assert.Equal(t, contentapi.DefaultLocations, cfg.Sync.GetLocations())
				assert.Equal(t, DefaultPageSize, cfg.Sync.GetPageSize())
				assert.Equal(t, DefaultRequestLimit, cfg.Sync.GetRequestLimit())
				assert.Equal(t, DefaultWindow, cfg.Sync.GetWindow())
				assert.Equal(t, DefaultStaleLockAfter, cfg.Sync.GetStaleLockAfter())
				assert.Zero(t, cfg.Sync.GetMinInterval())
				assert.Equal(t, DefaultConcurrency, cfg.Sync.GetConcurrency())
				assert.False(t, cfg.Sync.ScheduleEnabled())
				assert.Equal(t, DefaultContentAPIBaseURL, cfg.ContentAPI.GetBaseURL())
				assert.Equal(t, contentapi.DefaultTimeout, cfg.ContentAPI.GetTimeout())
			},
		},
		{
			name: "breaker_disabled",
			yamlContent: `storage: memory
contentApi:
  breaker:
    disabled: true`,
			verify: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Nil(t, cfg.ContentAPI.GetBreakerSettings())
			},
		},
		{
			name:        "invalid_yaml",
			yamlContent: "storage: [memory",
			wantErr:     "failed to parse YAML config",
		},
		{
			name:        "database_section_missing",
			yamlContent: `storage: database`,
			wantErr:     "database: required",
		},
		{
			name:        "unknown_storage",
			yamlContent: `storage: file`,
			wantErr:     `unknown type "file"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := LoadConfig(WithConfigPath(writeConfig(t, tt.yamlContent)))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(""))
		assert.ErrorContains(t, err, "path is required")
	})

	t.Run("missing_file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorContains(t, err, "failed to evaluate symlinks")
	})

	t.Run("symlink", func(t *testing.T) {
		t.Parallel()
		target := writeConfig(t, "storage: memory")
		link := filepath.Join(t.TempDir(), "link.yaml")
		require.NoError(t, os.Symlink(target, link))

		cfg, err := LoadConfig(WithConfigPath(link))
		require.NoError(t, err)
		assert.Equal(t, StorageTypeMemory, cfg.GetStorageType())
	})
}

func TestSyncConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sync    SyncConfig
		wantErr string
	}{
		{name: "defaults", sync: SyncConfig{}},
		{name: "unknown_location", sync: SyncConfig{Locations: []string{"inbox", "trash"}}, wantErr: `unknown location "trash"`},
		{name: "page_size_too_large", sync: SyncConfig{PageSize: MaxPageSize + 1}, wantErr: "pageSize"},
		{name: "negative_page_size", sync: SyncConfig{PageSize: -1}, wantErr: "pageSize"},
		{name: "negative_request_limit", sync: SyncConfig{RequestLimit: -1}, wantErr: "requestLimit"},
		{name: "negative_concurrency", sync: SyncConfig{Concurrency: -2}, wantErr: "concurrency"},
		{name: "bad_window", sync: SyncConfig{Window: "soon"}, wantErr: "window: invalid duration"},
		{name: "negative_min_interval", sync: SyncConfig{MinInterval: "-1m"}, wantErr: "must not be negative"},
		{name: "zero_window", sync: SyncConfig{Window: "0s"}, wantErr: "window must be positive"},
		{
			name:    "stale_lock_not_longer_than_window",
			sync:    SyncConfig{Window: "10m", StaleLockAfter: "10m"},
			wantErr: "staleLockAfter",
		},
		{
			name:    "bad_schedule_interval",
			sync:    SyncConfig{Schedule: &ScheduleConfig{Enabled: true, Interval: "often"}},
			wantErr: "schedule.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.sync.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestContentAPIConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		api     ContentAPIConfig
		wantErr string
	}{
		{name: "defaults", api: ContentAPIConfig{}},
		{name: "relative_url", api: ContentAPIConfig{BaseURL: "content.example.com"}, wantErr: "baseUrl"},
		{name: "bad_timeout", api: ContentAPIConfig{Timeout: "1 minute"}, wantErr: "timeout"},
		{
			name:    "bad_breaker_timeout",
			api:     ContentAPIConfig{Breaker: &BreakerConfig{OpenTimeout: "x"}},
			wantErr: "breaker.openTimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.api.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDatabaseConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		auth    *DynamicAuthConfig
		wantErr string
	}{
		{name: "static_password"},
		{name: "no_method", auth: &DynamicAuthConfig{}, wantErr: "no supported method"},
		{
			name:    "missing_region",
			auth:    &DynamicAuthConfig{AWSRDSIAM: &DynamicAuthAWSRDSIAM{}},
			wantErr: "region is required",
		},
		{name: "detect_region", auth: &DynamicAuthConfig{AWSRDSIAM: &DynamicAuthAWSRDSIAM{Region: "detect"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Database: "d", DynamicAuth: tt.auth}
			err := d.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDatabaseConfigGetPassword(t *testing.T) {
	t.Run("file_takes_precedence", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "from-env")
		path := filepath.Join(t.TempDir(), "pw")
		require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

		d := &DatabaseConfig{PasswordFile: path}
		pw, err := d.GetPassword()
		require.NoError(t, err)
		assert.Equal(t, "from-file", pw)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "from-env")
		pw, err := (&DatabaseConfig{}).GetPassword()
		require.NoError(t, err)
		assert.Equal(t, "from-env", pw)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "")
		_, err := (&DatabaseConfig{}).GetPassword()
		assert.ErrorContains(t, err, "no database password configured")
	})

	t.Run("unreadable_file", func(t *testing.T) {
		_, err := (&DatabaseConfig{PasswordFile: filepath.Join(t.TempDir(), "nope")}).GetPassword()
		assert.ErrorContains(t, err, "failed to read password")
	})
}

func TestDatabaseConfigGetConnectionString(t *testing.T) {
	base := DatabaseConfig{Host: "db", Port: 5433, User: "sync user", Database: "readlist"}

	t.Run("static_password_is_escaped", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "p@ss:word")
		d := base
		got, err := d.GetConnectionString()
		require.NoError(t, err)
		assert.Equal(t, "postgres://sync+user:p%40ss%3Aword@db:5433/readlist?sslmode=require", got)
	})

	t.Run("dynamic_auth_omits_password", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "")
		d := base
		d.SSLMode = "verify-full"
		d.DynamicAuth = &DynamicAuthConfig{AWSRDSIAM: &DynamicAuthAWSRDSIAM{Region: "eu-west-1"}}
		got, err := d.GetConnectionString()
		require.NoError(t, err)
		assert.Equal(t, "postgres://sync+user@db:5433/readlist?sslmode=verify-full", got)
	})

	t.Run("no_password", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "")
		d := base
		_, err := d.GetConnectionString()
		assert.Error(t, err)
	})
}

func TestSecrets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	secretFile := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("  file-secret \n"), 0o600))

	t.Run("trigger_inline", func(t *testing.T) {
		t.Parallel()
		got, err := (&TriggerConfig{Secret: "inline"}).GetSecret()
		require.NoError(t, err)
		assert.Equal(t, "inline", got)
	})

	t.Run("trigger_file_wins", func(t *testing.T) {
		t.Parallel()
		got, err := (&TriggerConfig{Secret: "inline", SecretFile: secretFile}).GetSecret()
		require.NoError(t, err)
		assert.Equal(t, "file-secret", got)
	})

	t.Run("trigger_missing", func(t *testing.T) {
		t.Parallel()
		_, err := (&TriggerConfig{}).GetSecret()
		assert.ErrorContains(t, err, "no trigger secret configured")
	})

	t.Run("encryption_file", func(t *testing.T) {
		t.Parallel()
		got, err := (&EncryptionConfig{KeyFile: secretFile}).GetKey()
		require.NoError(t, err)
		assert.Equal(t, "file-secret", got)
	})

	t.Run("encryption_missing", func(t *testing.T) {
		t.Parallel()
		_, err := (&EncryptionConfig{}).GetKey()
		assert.ErrorContains(t, err, "no encryption key configured")
	})
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"_STORAGE", "memory")
	t.Setenv(EnvPrefix+"_LOCATIONS", "feed, inbox")
	t.Setenv(EnvPrefix+"_PAGE_SIZE", "25")
	t.Setenv(EnvPrefix+"_TRIGGER_SECRET", "env-secret")
	t.Setenv(EnvPrefix+"_ENCRYPTION_KEY", "env-key")
	t.Setenv(EnvPrefix+"_CONTENT_API_BASE_URL", "http://localhost:9999")

	cfg, err := LoadConfig(WithConfigPath(writeConfig(t, `storage: database
sync:
  pageSize: 100
trigger:
  secret: file-secret`)))
	require.NoError(t, err)

	assert.Equal(t, StorageTypeMemory, cfg.GetStorageType())
	assert.Equal(t,
		[]contentapi.Location{contentapi.LocationInbox, contentapi.LocationFeed},
		cfg.Sync.GetLocations())
	assert.Equal(t, 25, cfg.Sync.GetPageSize())
	assert.Equal(t, "env-secret", cfg.Trigger.Secret)
	assert.Equal(t, "env-key", cfg.Encryption.Key)
	assert.Equal(t, "http://localhost:9999", cfg.ContentAPI.GetBaseURL())
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "unknown_location", key: "_LOCATIONS", value: "inbox,trash", wantErr: "_LOCATIONS"},
		{name: "page_size_not_a_number", key: "_PAGE_SIZE", value: "many", wantErr: "_PAGE_SIZE"},
		{name: "page_size_zero", key: "_PAGE_SIZE", value: "0", wantErr: "_PAGE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvPrefix+"_STORAGE", "memory")
			t.Setenv(EnvPrefix+tt.key, tt.value)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
