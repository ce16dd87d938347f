package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/readlist/readlist-sync/internal/api"
	"github.com/readlist/readlist-sync/internal/app/storage"
	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/contentapi"
	"github.com/readlist/readlist-sync/internal/credentials"
	syncotel "github.com/readlist/readlist-sync/internal/otel"
	"github.com/readlist/readlist-sync/internal/status"
	pkgsync "github.com/readlist/readlist-sync/internal/sync"
	"github.com/readlist/readlist-sync/internal/sync/coordinator"
	"github.com/readlist/readlist-sync/internal/telemetry"
)

const (
	defaultHTTPAddress = ":8080"
	defaultReadTimeout = 10 * time.Second
	// A triggered pass answers only once every eligible user is done.
	defaultWriteTimeout = 5 * time.Minute
	defaultIdleTimeout  = 60 * time.Second
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig collects the builder inputs. Component overrides exist
// primarily for tests.
type syncAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	contentClient  contentapi.Client
	decryptor      credentials.Decryptor
	reportDir      string

	// HTTP server options
	address      string
	middlewares  []func(http.Handler) http.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		address:      defaultHTTPAddress,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		idleTimeout:  defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewSyncApp builds the long-running service: sync components plus the
// HTTP server with the trigger endpoint.
func NewSyncApp(ctx context.Context, opts ...SyncAppOptions) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	secret, err := cfg.config.Trigger.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trigger secret: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(cfg, components, secret)
	if err != nil {
		components.Cleanup()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &SyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: func() {
			components.Cleanup()
			cancel()
		},
	}, nil
}

// NewComponents builds the sync components without an HTTP server, for
// one-shot commands. The caller must call Cleanup.
func NewComponents(ctx context.Context, opts ...SyncAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithContentClient allows injecting a Content API client (for testing)
func WithContentClient(c contentapi.Client) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.contentClient = c
		return nil
	}
}

// WithDecryptor allows injecting a credential decryptor (for testing)
func WithDecryptor(d credentials.Decryptor) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.decryptor = d
		return nil
	}
}

// WithReportDirectory stores the report of every pass under dir
func WithReportDirectory(dir string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.reportDir = dir
		return nil
	}
}

// WithTelemetry wires the providers and the Prometheus handler of t
func WithTelemetry(t *telemetry.Telemetry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if t == nil {
			return nil
		}
		cfg.meterProvider = t.MeterProvider()
		cfg.tracerProvider = t.TracerProvider()
		cfg.metricsHandler = t.MetricsHandler()
		return nil
	}
}

// buildComponents builds storage, the content client, the engine and the
// coordinator.
func buildComponents(ctx context.Context, b *syncAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	if b.storageFactory == nil {
		f, err := storage.NewStorageFactory(ctx, b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
		b.storageFactory = f
	}

	components, err := wireSync(ctx, b)
	if err != nil {
		b.storageFactory.Cleanup()
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	slog.Info("Sync components initialized successfully")
	return components, nil
}

func wireSync(ctx context.Context, b *syncAppConfig) (*AppComponents, error) {
	store, err := b.storageFactory.CreateStateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}
	docWriter, err := b.storageFactory.CreateDocumentWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create document writer: %w", err)
	}

	if b.decryptor == nil {
		key, err := b.config.Encryption.GetKey()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
		}
		b.decryptor, err = credentials.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential cipher: %w", err)
		}
	}

	if b.contentClient == nil {
		b.contentClient = buildContentClient(&b.config.ContentAPI)
	}

	var tracer trace.Tracer
	if b.tracerProvider != nil {
		tracer = b.tracerProvider.Tracer(syncotel.SyncTracerName)
	}

	engine := pkgsync.NewEngine(b.contentClient, docWriter,
		pkgsync.SettingsFromConfig(b.config),
		pkgsync.WithTracer(tracer))

	coordOpts := []coordinator.Option{coordinator.WithTracer(tracer)}
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}
	if b.reportDir != "" {
		coordOpts = append(coordOpts, coordinator.WithReportPersistence(status.NewFileReportPersistence(b.reportDir)))
	}

	return &AppComponents{
		SyncCoordinator: coordinator.New(store, engine, b.decryptor, b.config, coordOpts...),
		StateStore:      store,
		Storage:         b.storageFactory,
	}, nil
}

func buildContentClient(cfg *config.ContentAPIConfig) contentapi.Client {
	var client contentapi.Client = contentapi.NewHTTPClient(cfg.GetBaseURL(), cfg.GetTimeout())
	if settings := cfg.GetBreakerSettings(); settings != nil {
		client = contentapi.NewCircuitBreakerClient(client, *settings)
	}
	return client
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *syncAppConfig, c *AppComponents, secret string) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	if b.meterProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Metrics go first to also capture rejected requests.
		b.middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, b.middlewares...)
	}
	if b.tracerProvider != nil {
		b.middlewares = append(b.middlewares, telemetry.TracingMiddleware(b.tracerProvider))
	}

	router := api.NewServer(c.SyncCoordinator, c.StateStore,
		api.WithMiddlewares(b.middlewares...),
		api.WithTriggerSecret(secret),
		api.WithReadinessCheck(c.Storage.CheckReadiness),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
