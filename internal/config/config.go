// Package config provides configuration loading and management for the sync service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/readlist/readlist-sync/internal/contentapi"
	"github.com/readlist/readlist-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable the service reads
const EnvPrefix = "READLIST_SYNC"

// StorageType selects the state store and document writer backend
type StorageType string

const (
	// StorageTypeDatabase stores state and documents in PostgreSQL
	StorageTypeDatabase StorageType = "database"

	// StorageTypeMemory keeps everything in process memory. Intended for
	// local development and tests only.
	StorageTypeMemory StorageType = "memory"
)

const (
	// DefaultPageSize is the page size requested from the content API
	DefaultPageSize = 100
	// MaxPageSize is the largest page the content API accepts
	MaxPageSize = 1000
	// DefaultRequestLimit is the per-user request budget per window
	DefaultRequestLimit = 20
	// DefaultWindow is the length of the rolling rate limit window
	DefaultWindow = 60 * time.Second
	// DefaultStaleLockAfter is how long a lock is honoured before it may be reclaimed
	DefaultStaleLockAfter = 10 * time.Minute
	// DefaultConcurrency is the number of users synced in parallel by one pass
	DefaultConcurrency = 4
	// DefaultScheduleInterval is the interval of the built-in pass scheduler
	DefaultScheduleInterval = time.Minute
	// DefaultContentAPIBaseURL is the public content API
	DefaultContentAPIBaseURL = "https://readwise.io"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Storage selects the backend, "database" (default) or "memory"
	Storage StorageType `yaml:"storage,omitempty"`

	// Database holds the PostgreSQL connection settings
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// ContentAPI configures the remote content API client
	ContentAPI ContentAPIConfig `yaml:"contentApi"`

	// Sync tunes the sync engine and coordinator
	Sync SyncConfig `yaml:"sync"`

	// Trigger protects the HTTP trigger endpoint
	Trigger TriggerConfig `yaml:"trigger"`

	// Encryption holds the secret used to decrypt stored API tokens
	Encryption EncryptionConfig `yaml:"encryption"`

	// Telemetry configures metrics and tracing
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ContentAPIConfig configures the content API client
type ContentAPIConfig struct {
	// BaseURL is the API root, without the /api/v3 path
	BaseURL string `yaml:"baseUrl,omitempty"`

	// Timeout bounds one request (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// Breaker configures the circuit breaker around the client
	Breaker *BreakerConfig `yaml:"breaker,omitempty"`
}

// BreakerConfig configures the client circuit breaker
type BreakerConfig struct {
	// Disabled turns the breaker off
	Disabled bool `yaml:"disabled,omitempty"`

	// ConsecutiveFailures opens the breaker
	ConsecutiveFailures uint32 `yaml:"consecutiveFailures,omitempty"`

	// OpenTimeout is how long the breaker stays open (e.g. "2m")
	OpenTimeout string `yaml:"openTimeout,omitempty"`
}

// SyncConfig tunes the sync engine
type SyncConfig struct {
	// Locations restricts which locations are synced. They are always
	// visited in the fixed priority order. Empty means all locations.
	Locations []string `yaml:"locations,omitempty"`

	// PageSize is the number of documents requested per list call
	PageSize int `yaml:"pageSize,omitempty"`

	// RequestLimit is the per-user request budget for one window
	RequestLimit int `yaml:"requestLimit,omitempty"`

	// Window is the length of the budget window (e.g. "60s")
	Window string `yaml:"window,omitempty"`

	// StaleLockAfter is the age after which a held lock may be reclaimed
	StaleLockAfter string `yaml:"staleLockAfter,omitempty"`

	// MinInterval is the minimum gap between two passes of a user that
	// completed without exhausting its budget
	MinInterval string `yaml:"minInterval,omitempty"`

	// Concurrency is the number of users synced in parallel
	Concurrency int `yaml:"concurrency,omitempty"`

	// Schedule enables the built-in pass scheduler
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig configures the built-in scheduler
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval,omitempty"`
}

// TriggerConfig configures the trigger endpoint shared secret
type TriggerConfig struct {
	// Secret is the bearer token expected by the trigger endpoint
	Secret string `yaml:"secret,omitempty"`

	// SecretFile is a file containing the secret; it takes precedence
	SecretFile string `yaml:"secretFile,omitempty"`
}

// EncryptionConfig holds the credential encryption secret
type EncryptionConfig struct {
	// Key is the secret the AES key is derived from
	Key string `yaml:"key,omitempty"`

	// KeyFile is a file containing the key; it takes precedence
	KeyFile string `yaml:"keyFile,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// DynamicAuth replaces the static password with short-lived tokens
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a token based authentication method
type DynamicAuthConfig struct {
	// AWSRDSIAM authenticates with AWS RDS IAM tokens
	AWSRDSIAM *DynamicAuthAWSRDSIAM `yaml:"awsRdsIam,omitempty"`
}

// DynamicAuthAWSRDSIAM configures AWS RDS IAM authentication
type DynamicAuthAWSRDSIAM struct {
	// Region is the AWS region, or "detect" to read it from instance metadata
	Region string `yaml:"region"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. READLIST_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		return readSecretFile(d.PasswordFile, "password")
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with the static
// password. With dynamic auth configured the password is left out and
// supplied per connection instead.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionStringWithAuth(""), nil
	}

	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionStringWithAuth(password), nil
}

// BuildConnectionStringWithAuth builds a PostgreSQL connection string with
// the given password, omitted when empty. Credentials are URL-escaped.
func (d *DatabaseConfig) BuildConnectionStringWithAuth(password string) string {
	userInfo := url.QueryEscape(d.User)
	if password != "" {
		userInfo += ":" + url.QueryEscape(password)
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		userInfo,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

// LoadConfig loads and parses configuration from a YAML file and applies
// environment overrides.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnv overlays READLIST_SYNC_* variables on the file configuration
func (c *Config) applyEnv() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("storage") {
		c.Storage = StorageType(v.GetString("storage"))
	}
	if v.IsSet("locations") {
		locs, err := contentapi.ParseLocations(v.GetString("locations"))
		if err != nil {
			return fmt.Errorf("%s_LOCATIONS: %w", EnvPrefix, err)
		}
		c.Sync.Locations = make([]string, len(locs))
		for i, l := range locs {
			c.Sync.Locations[i] = string(l)
		}
	}
	if v.IsSet("page_size") {
		size := v.GetInt("page_size")
		if size <= 0 {
			return fmt.Errorf("%s_PAGE_SIZE must be a positive integer, got %q", EnvPrefix, v.GetString("page_size"))
		}
		c.Sync.PageSize = size
	}
	if v.IsSet("trigger_secret") {
		c.Trigger.Secret = v.GetString("trigger_secret")
	}
	if v.IsSet("encryption_key") {
		c.Encryption.Key = v.GetString("encryption_key")
	}
	if v.IsSet("content_api_base_url") {
		c.ContentAPI.BaseURL = v.GetString("content_api_base_url")
	}
	return nil
}

// GetStorageType returns the configured backend, defaulting to database
func (c *Config) GetStorageType() StorageType {
	if c.Storage == "" {
		return StorageTypeDatabase
	}
	return c.Storage
}

// GetLocations returns the locations to sync in backfill priority order
func (s *SyncConfig) GetLocations() []contentapi.Location {
	if len(s.Locations) == 0 {
		return append([]contentapi.Location(nil), contentapi.DefaultLocations...)
	}
	// validate() has already rejected unknown names
	locs, _ := contentapi.ParseLocations(strings.Join(s.Locations, ","))
	return locs
}

// GetPageSize returns the page size, using the default if unset
func (s *SyncConfig) GetPageSize() int {
	if s.PageSize == 0 {
		return DefaultPageSize
	}
	return s.PageSize
}

// GetRequestLimit returns the per-window request budget
func (s *SyncConfig) GetRequestLimit() int {
	if s.RequestLimit == 0 {
		return DefaultRequestLimit
	}
	return s.RequestLimit
}

// GetWindow returns the budget window length
func (s *SyncConfig) GetWindow() time.Duration {
	return durationOr(s.Window, DefaultWindow)
}

// GetStaleLockAfter returns the lock staleness threshold
func (s *SyncConfig) GetStaleLockAfter() time.Duration {
	return durationOr(s.StaleLockAfter, DefaultStaleLockAfter)
}

// GetMinInterval returns the minimum interval between completed passes
func (s *SyncConfig) GetMinInterval() time.Duration {
	return durationOr(s.MinInterval, 0)
}

// GetConcurrency returns the number of users synced in parallel
func (s *SyncConfig) GetConcurrency() int {
	if s.Concurrency == 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

// ScheduleEnabled reports whether the built-in scheduler should run
func (s *SyncConfig) ScheduleEnabled() bool {
	return s.Schedule != nil && s.Schedule.Enabled
}

// GetScheduleInterval returns the scheduler interval
func (s *SyncConfig) GetScheduleInterval() time.Duration {
	if s.Schedule == nil {
		return DefaultScheduleInterval
	}
	return durationOr(s.Schedule.Interval, DefaultScheduleInterval)
}

// GetBaseURL returns the content API base URL
func (a *ContentAPIConfig) GetBaseURL() string {
	if a.BaseURL == "" {
		return DefaultContentAPIBaseURL
	}
	return a.BaseURL
}

// GetTimeout returns the per request timeout
func (a *ContentAPIConfig) GetTimeout() time.Duration {
	return durationOr(a.Timeout, contentapi.DefaultTimeout)
}

// GetBreakerSettings returns the breaker settings, or nil when disabled
func (a *ContentAPIConfig) GetBreakerSettings() *contentapi.BreakerSettings {
	settings := contentapi.DefaultBreakerSettings()
	if a.Breaker == nil {
		return &settings
	}
	if a.Breaker.Disabled {
		return nil
	}
	if a.Breaker.ConsecutiveFailures > 0 {
		settings.ConsecutiveFailures = a.Breaker.ConsecutiveFailures
	}
	settings.Timeout = durationOr(a.Breaker.OpenTimeout, settings.Timeout)
	return &settings
}

// GetSecret returns the trigger secret, preferring SecretFile
func (t *TriggerConfig) GetSecret() (string, error) {
	if t.SecretFile != "" {
		return readSecretFile(t.SecretFile, "trigger secret")
	}
	if t.Secret == "" {
		return "", fmt.Errorf("no trigger secret configured: set trigger.secretFile or %s_TRIGGER_SECRET", EnvPrefix)
	}
	return t.Secret, nil
}

// GetKey returns the encryption key, preferring KeyFile
func (e *EncryptionConfig) GetKey() (string, error) {
	if e.KeyFile != "" {
		return readSecretFile(e.KeyFile, "encryption key")
	}
	if e.Key == "" {
		return "", fmt.Errorf("no encryption key configured: set encryption.keyFile or %s_ENCRYPTION_KEY", EnvPrefix)
	}
	return e.Key, nil
}

func readSecretFile(path, what string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read %s from file %s: %w", what, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// durationOr parses raw, returning def when raw is empty. validate() has
// already rejected unparseable values.
func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	switch c.GetStorageType() {
	case StorageTypeDatabase:
		if c.Database == nil {
			errs = append(errs, fmt.Errorf("database: required when storage is %q", StorageTypeDatabase))
		} else if err := c.Database.validate(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	case StorageTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown type %q", c.Storage))
	}

	if err := c.Sync.validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.ContentAPI.validate(); err != nil {
		errs = append(errs, fmt.Errorf("contentApi: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (d *DatabaseConfig) validate() error {
	if d.DynamicAuth == nil {
		return nil
	}
	if d.DynamicAuth.AWSRDSIAM == nil {
		return fmt.Errorf("dynamicAuth: no supported method configured (e.g. awsRdsIam)")
	}
	if d.DynamicAuth.AWSRDSIAM.Region == "" {
		return fmt.Errorf("dynamicAuth.awsRdsIam.region is required")
	}
	return nil
}

func (s *SyncConfig) validate() error {
	for _, name := range s.Locations {
		if !contentapi.Location(strings.ToLower(strings.TrimSpace(name))).Valid() {
			return fmt.Errorf("locations: unknown location %q", name)
		}
	}
	if s.PageSize < 0 || s.PageSize > MaxPageSize {
		return fmt.Errorf("pageSize must be between 1 and %d", MaxPageSize)
	}
	if s.RequestLimit < 0 {
		return fmt.Errorf("requestLimit must be positive")
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	for field, raw := range map[string]string{
		"window":         s.Window,
		"staleLockAfter": s.StaleLockAfter,
		"minInterval":    s.MinInterval,
	} {
		if err := validateDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if s.Schedule != nil {
		if err := validateDuration(s.Schedule.Interval); err != nil {
			return fmt.Errorf("schedule.interval: %w", err)
		}
	}

	if s.GetWindow() <= 0 {
		return fmt.Errorf("window must be positive")
	}
	// A lock younger than one window may still be doing legitimate work.
	if s.GetStaleLockAfter() <= s.GetWindow() {
		return fmt.Errorf("staleLockAfter (%s) must be longer than window (%s)",
			s.GetStaleLockAfter(), s.GetWindow())
	}
	return nil
}

func (a *ContentAPIConfig) validate() error {
	if err := validateDuration(a.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	u, err := url.Parse(a.GetBaseURL())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("baseUrl: invalid URL %q", a.GetBaseURL())
	}
	if a.Breaker != nil {
		if err := validateDuration(a.Breaker.OpenTimeout); err != nil {
			return fmt.Errorf("breaker.openTimeout: %w", err)
		}
	}
	return nil
}

func validateDuration(raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return fmt.Errorf("duration %q must not be negative", raw)
	}
	return nil
}
