package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/credentials"
	"github.com/readlist/readlist-sync/internal/status"
	pkgsync "github.com/readlist/readlist-sync/internal/sync"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/telemetry"
)

// releaseMaxTries bounds the attempts of the final state write
const releaseMaxTries = 3

// Coordinator selects eligible users, locks them, runs the engine and
// stores each outcome.
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/readlist/readlist-sync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// RunPass runs one idempotent pass over every eligible user. Per-user
	// failures are reported in the result and never abort the pass.
	RunPass(ctx context.Context) (*status.PassReport, error)

	// Start runs passes on the configured schedule until ctx is cancelled
	// or Stop is called. It returns immediately if scheduling is disabled.
	Start(ctx context.Context) error

	// Stop stops a running schedule and waits for the current pass.
	Stop() error
}

type defaultCoordinator struct {
	store     state.Store
	engine    pkgsync.Engine
	decryptor credentials.Decryptor
	settings  settings

	clock      clock.WithTicker
	newBackOff func() backoff.BackOff
	metrics    *telemetry.SyncMetrics
	tracer     trace.Tracer
	reports    status.ReportPersistence

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithClock sets the time source
func WithClock(clk clock.WithTicker) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithReleaseBackOff sets the retry policy of the final state write
func WithReleaseBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *defaultCoordinator) {
		c.newBackOff = newBackOff
	}
}

// WithTracer sets the tracer for pass spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// WithReportPersistence stores the report of every pass
func WithReportPersistence(reports status.ReportPersistence) Option {
	return func(c *defaultCoordinator) {
		c.reports = reports
	}
}

// New creates a coordinator
func New(
	store state.Store,
	engine pkgsync.Engine,
	decryptor credentials.Decryptor,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		store:     store,
		engine:    engine,
		decryptor: decryptor,
		settings:  settingsFromConfig(cfg),
		clock:     clock.RealClock{},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// scheduleInterval returns the base interval with up to ±25% jitter so that
// several replicas do not poll the database in lockstep.
func scheduleInterval(base time.Duration) time.Duration {
	jitter := int64(base / 4)
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	return base + time.Duration(rand.Int64N(2*jitter)-jitter)
}

// Start implements Coordinator
func (c *defaultCoordinator) Start(ctx context.Context) error {
	if !c.settings.schedule {
		slog.Info("Built-in sync schedule disabled, waiting for external triggers")
		close(c.done)
		return nil
	}

	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		close(c.done)
		slog.Info("Sync coordinator shut down")
	}()

	slog.Info("Starting sync coordinator", "interval", c.settings.interval)

	c.runScheduledPass(coordCtx)

	for {
		select {
		case <-c.clock.After(scheduleInterval(c.settings.interval)):
			c.runScheduledPass(coordCtx)
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop implements Coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

func (c *defaultCoordinator) runScheduledPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.RunPass(ctx); err != nil {
		slog.Error("Scheduled sync pass failed", "error", err)
	}
}
