package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewSyncMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	metrics, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// Nil metrics must not panic.
	ctx := context.Background()
	metrics.RecordPassDuration(ctx, time.Second, 3)
	metrics.RecordUserResult(ctx, "ok")
	metrics.RecordRequests(ctx, 4)
	metrics.RecordDocumentsWritten(ctx, "inbox", 2)
	metrics.RecordStop(ctx, "rate_limited")
	metrics.RecordLockSkipped(ctx)
}

func TestSyncMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordPassDuration(ctx, 1500*time.Millisecond, 2)
	metrics.RecordUserResult(ctx, "ok")
	metrics.RecordUserResult(ctx, "sync_failed")
	metrics.RecordRequests(ctx, 7)
	metrics.RecordRequests(ctx, 0)
	metrics.RecordDocumentsWritten(ctx, "inbox", 3)
	metrics.RecordDocumentsWritten(ctx, "library", 2)
	metrics.RecordStop(ctx, "budget_exhausted")
	metrics.RecordStop(ctx, "")
	metrics.RecordLockSkipped(ctx)

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumValue(t, got["readlist_sync_user_results_total"]))
	assert.Equal(t, int64(7), sumValue(t, got["readlist_sync_api_requests_total"]))
	assert.Equal(t, int64(5), sumValue(t, got["readlist_sync_documents_written_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["readlist_sync_early_stops_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["readlist_sync_lock_skips_total"]))

	hist, ok := got["readlist_sync_pass_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}
