package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer(SyncTracerName)
}

func TestStartSpan_NilTracerIsNoop(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), nil, "sync.location")
	require.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpan_RecordsAttributes(t *testing.T) {
	t.Parallel()

	exporter, tracer := newRecorder(t)

	_, span := StartSpan(context.Background(), tracer, "sync.location",
		trace.WithAttributes(AttrLocation.String("inbox"), AttrCompleted.Bool(true)))
	require.True(t, span.SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.location", spans[0].Name)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "inbox", attrs["sync.location"])
	assert.Equal(t, true, attrs["sync.completed"])
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		expectedCode codes.Code
		expectEvent  bool
	}{
		{name: "nil error leaves span untouched", err: nil, expectedCode: codes.Unset},
		{name: "error marks span failed", err: errors.New("list documents: 502"), expectedCode: codes.Error, expectEvent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tracer := newRecorder(t)
			_, span := tracer.Start(context.Background(), "op")
			RecordError(span, tt.err)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.expectedCode, spans[0].Status.Code)
			if tt.expectEvent {
				assert.Equal(t, "operation failed", spans[0].Status.Description)
				require.NotEmpty(t, spans[0].Events)
				assert.Equal(t, "exception", spans[0].Events[0].Name)
			} else {
				assert.Empty(t, spans[0].Events)
			}
		})
	}

	assert.NotPanics(t, func() { RecordError(nil, errors.New("x")) })
}
