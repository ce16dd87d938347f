// Package otel provides tracing helpers shared by the sync engine and the
// coordinator.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SyncTracerName is the instrumentation scope of sync spans
const SyncTracerName = "github.com/readlist/readlist-sync/sync"

// Attribute keys used on sync spans.
const (
	AttrUserID        = attribute.Key("user.id")
	AttrLocation      = attribute.Key("sync.location")
	AttrMode          = attribute.Key("sync.mode")
	AttrStopReason    = attribute.Key("sync.stop_reason")
	AttrCompleted     = attribute.Key("sync.completed")
	AttrDocsWritten   = attribute.Key("sync.documents_written")
	AttrRequests      = attribute.Key("sync.requests")
	AttrHasPageCursor = attribute.Key("pagination.has_cursor")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. The status
// description stays generic; the error itself is attached as an event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
