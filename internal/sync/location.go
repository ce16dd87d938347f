package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/readlist/readlist-sync/internal/budget"
	"github.com/readlist/readlist-sync/internal/contentapi"
	"github.com/readlist/readlist-sync/internal/cursor"
	syncotel "github.com/readlist/readlist-sync/internal/otel"
	"github.com/readlist/readlist-sync/internal/sync/writer"
)

// LocationResult is the outcome of one syncLocation call.
type LocationResult struct {
	// NextCursor is the cursor to persist for the location. On error it is
	// the cursor that re-fetches the first page whose documents were not
	// all written.
	NextCursor cursor.Cursor
	// Completed is true when the last page was reached.
	Completed bool
	// Written counts documents upserted during the call.
	Written int
	// Requests counts the API requests the call issued.
	Requests int
}

// PersistenceError reports a failed cache write. The location's cursor must
// not advance past it.
type PersistenceError struct {
	Location contentapi.Location
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to write %s documents: %v", e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// locationSyncer drives the pagination loop of one location for one user.
// It shares the user's budget tracker with every other location of the pass.
type locationSyncer struct {
	client   contentapi.Client
	writer   writer.DocumentWriter
	tracker  *budget.Tracker
	clock    clock.PassiveClock
	tracer   trace.Tracer
	userID   uuid.UUID
	token    string
	pageSize int
}

// syncLocation fetches pages of loc starting from prev until the last page
// is reached or the budget runs out. Every exit leaves NextCursor pointing
// at a position whose preceding documents are all written.
func (s *locationSyncer) syncLocation(
	ctx context.Context, loc contentapi.Location, prev cursor.Cursor, mode Mode,
) (result LocationResult, err error) {
	ctx, span := syncotel.StartSpan(ctx, s.tracer, "sync.location",
		trace.WithAttributes(
			syncotel.AttrLocation.String(string(loc)),
			syncotel.AttrMode.String(mode.String()),
			syncotel.AttrHasPageCursor.Bool(prev.Kind() == cursor.KindPage),
		))
	issuedBefore := s.tracker.Issued()
	defer func() {
		result.Requests = s.tracker.Issued() - issuedBefore
		span.SetAttributes(
			syncotel.AttrCompleted.Bool(result.Completed),
			syncotel.AttrDocsWritten.Int(result.Written),
			syncotel.AttrRequests.Int(result.Requests))
		syncotel.RecordError(span, err)
		span.End()
	}()

	watermark := prev.UpdatedAfter(mode == ModeIncremental)
	pageToken := prev.Token()
	resumed := pageToken != ""
	startedAt := s.clock.Now()

	// current re-fetches the page being processed
	current := prev
	result.NextCursor = prev

	var maxUpdated *time.Time

	for {
		if !s.tracker.CanRequest() {
			result.NextCursor = current
			return result, nil
		}

		params := contentapi.ListParams{
			Location:     loc,
			UpdatedAfter: watermark,
			PageCursor:   pageToken,
			PageSize:     s.pageSize,
			WithContent:  true,
		}
		page, err := budget.Do(s.tracker, func() (*contentapi.ListResponse, error) {
			return s.client.ListDocuments(ctx, s.token, params)
		})
		if err != nil {
			result.NextCursor = current
			return result, fmt.Errorf("failed to list %s page: %w", loc, err)
		}

		docs, cutoff, err := s.resolve(ctx, page.Results)
		written, writeErr := s.write(ctx, loc, docs)
		result.Written += written
		if writeErr != nil {
			result.NextCursor = current
			return result, writeErr
		}
		for i := range docs {
			if maxUpdated == nil || docs[i].UpdatedAt.After(*maxUpdated) {
				at := docs[i].UpdatedAt
				maxUpdated = &at
			}
		}
		if err != nil {
			result.NextCursor = current
			return result, err
		}
		if cutoff {
			slog.Debug("Budget exhausted mid-page, keeping cursor",
				"user_id", s.userID,
				"location", loc,
				"written", len(docs),
				"page_size", len(page.Results))
			result.NextCursor = current
			return result, nil
		}

		next := page.NextPage()
		if next == "" {
			result.Completed = true
			result.NextCursor = cursor.Completed(completedAt(maxUpdated, watermark, startedAt, resumed))
			return result, nil
		}

		pageToken = next
		current = cursor.Page(next, watermark)
	}
}

// resolve returns the documents of a page whose content is available,
// fetching full documents for those listed without inline content. It stops
// at the first document it cannot afford to fetch and reports cutoff=true.
// Documents that vanished between listing and fetching are skipped.
func (s *locationSyncer) resolve(ctx context.Context, listed []contentapi.Document) ([]contentapi.Document, bool, error) {
	resolved := make([]contentapi.Document, 0, len(listed))
	for i := range listed {
		doc := listed[i]
		if doc.HasInlineContent() {
			resolved = append(resolved, doc)
			continue
		}
		if !s.tracker.CanRequest() {
			return resolved, true, nil
		}

		full, err := budget.Do(s.tracker, func() (*contentapi.Document, error) {
			return s.client.GetDocument(ctx, s.token, doc.ID)
		})
		switch {
		case errors.Is(err, contentapi.ErrDocumentNotFound):
			slog.Debug("Document disappeared before its content was fetched",
				"user_id", s.userID, "document_id", doc.ID)
			continue
		case err != nil:
			return resolved, false, fmt.Errorf("failed to fetch document %s: %w", doc.ID, err)
		}

		doc.HTMLContent = full.HTMLContent
		if doc.HTMLContent == nil {
			empty := ""
			doc.HTMLContent = &empty
		}
		resolved = append(resolved, doc)
	}
	return resolved, false, nil
}

func (s *locationSyncer) write(ctx context.Context, loc contentapi.Location, docs []contentapi.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	syncedAt := s.clock.Now()
	rows := make([]writer.CachedDocument, len(docs))
	for i := range docs {
		rows[i] = writer.FromDocument(s.userID, loc, &docs[i], syncedAt)
	}
	if _, err := s.writer.Upsert(ctx, rows); err != nil {
		return 0, &PersistenceError{Location: loc, Err: err}
	}
	return len(rows), nil
}

// completedAt picks the watermark of a completed pass. It never moves
// backwards from the pass's own watermark. A pass that started and ended in
// this call without seeing documents advances to the time it started
// listing, which no later update can precede.
func completedAt(maxUpdated, watermark *time.Time, startedAt time.Time, resumed bool) time.Time {
	var at time.Time
	switch {
	case maxUpdated != nil:
		at = *maxUpdated
	case !resumed:
		at = startedAt
	default:
		at = startedAt
		if watermark != nil {
			at = *watermark
		}
	}
	if watermark != nil && watermark.After(at) {
		at = *watermark
	}
	return at
}
