package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/readlist/readlist-sync/sync"

// SyncMetrics holds the instruments recorded by the coordinator and engine.
// All methods are safe on a nil receiver.
type SyncMetrics struct {
	passDuration     metric.Float64Histogram
	userResults      metric.Int64Counter
	apiRequests      metric.Int64Counter
	documentsWritten metric.Int64Counter
	stops            metric.Int64Counter
	lockSkips        metric.Int64Counter
}

// NewSyncMetrics creates the sync instruments. A nil provider yields nil
// metrics.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	passDuration, err := meter.Float64Histogram(
		"readlist_sync_pass_duration_seconds",
		metric.WithDescription("Duration of one sync pass over eligible users"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	userResults, err := meter.Int64Counter(
		"readlist_sync_user_results_total",
		metric.WithDescription("Per-user sync results by status"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}

	apiRequests, err := meter.Int64Counter(
		"readlist_sync_api_requests_total",
		metric.WithDescription("Content API requests charged to user budgets"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	documentsWritten, err := meter.Int64Counter(
		"readlist_sync_documents_written_total",
		metric.WithDescription("Documents upserted into the cache"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	stops, err := meter.Int64Counter(
		"readlist_sync_early_stops_total",
		metric.WithDescription("User syncs stopped before visiting every location, by reason"),
		metric.WithUnit("{stop}"),
	)
	if err != nil {
		return nil, err
	}

	lockSkips, err := meter.Int64Counter(
		"readlist_sync_lock_skips_total",
		metric.WithDescription("Users skipped because another invocation held the lock"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		passDuration:     passDuration,
		userResults:      userResults,
		apiRequests:      apiRequests,
		documentsWritten: documentsWritten,
		stops:            stops,
		lockSkips:        lockSkips,
	}, nil
}

// RecordPassDuration records the duration of a pass over users
func (m *SyncMetrics) RecordPassDuration(ctx context.Context, d time.Duration, users int) {
	if m == nil {
		return
	}
	m.passDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Int("users", users),
	))
}

// RecordUserResult counts one user's result
func (m *SyncMetrics) RecordUserResult(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.userResults.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRequests counts API requests issued during one user's sync
func (m *SyncMetrics) RecordRequests(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.apiRequests.Add(ctx, int64(n))
}

// RecordDocumentsWritten counts documents written for a location
func (m *SyncMetrics) RecordDocumentsWritten(ctx context.Context, location string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documentsWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("location", location)))
}

// RecordStop counts an early stop, reason is e.g. "rate_limited"
func (m *SyncMetrics) RecordStop(ctx context.Context, reason string) {
	if m == nil || reason == "" {
		return
	}
	m.stops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordLockSkipped counts a user whose lock was held elsewhere
func (m *SyncMetrics) RecordLockSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockSkips.Add(ctx, 1)
}
