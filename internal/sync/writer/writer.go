// Package writer persists fetched documents into the local document cache.
package writer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

// CachedDocument is one cached remote document of a user.
type CachedDocument struct {
	UserID      uuid.UUID
	DocumentID  string
	Location    contentapi.Location
	Title       string
	Author      string
	URL         string
	SourceURL   string
	Category    string
	Summary     string
	Content     *string
	WordCount   int
	Tags        map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastMovedAt *time.Time
	SyncedAt    time.Time
}

// FromDocument converts a remote document with resolved content.
func FromDocument(userID uuid.UUID, loc contentapi.Location, doc *contentapi.Document, syncedAt time.Time) CachedDocument {
	tags := doc.Tags
	if tags == nil {
		tags = map[string]any{}
	}
	return CachedDocument{
		UserID:      userID,
		DocumentID:  doc.ID,
		Location:    loc,
		Title:       doc.Title,
		Author:      doc.Author,
		URL:         doc.URL,
		SourceURL:   doc.SourceURL,
		Category:    doc.Category,
		Summary:     doc.Summary,
		Content:     doc.HTMLContent,
		WordCount:   doc.WordCount,
		Tags:        tags,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		LastMovedAt: doc.LastMovedAt,
		SyncedAt:    syncedAt,
	}
}

// DocumentWriter upserts documents keyed by (user, document id).
//
// An upsert never replaces a stored document with one whose UpdatedAt is
// older, so replaying a page after an interrupted pass cannot roll cached
// data back.
//
//go:generate mockgen -destination=mocks/mock_document_writer.go -package=mocks github.com/readlist/readlist-sync/internal/sync/writer DocumentWriter
type DocumentWriter interface {
	// Upsert writes docs and returns how many rows were inserted or updated.
	Upsert(ctx context.Context, docs []CachedDocument) (int, error)
}

// dedupe keeps the newest version of each (user, document) in docs,
// preserving first-seen order.
func dedupe(docs []CachedDocument) []CachedDocument {
	type key struct {
		user uuid.UUID
		id   string
	}
	index := make(map[key]int, len(docs))
	out := make([]CachedDocument, 0, len(docs))
	for _, d := range docs {
		k := key{d.UserID, d.DocumentID}
		if i, ok := index[k]; ok {
			if !d.UpdatedAt.Before(out[i].UpdatedAt) {
				out[i] = d
			}
			continue
		}
		index[k] = len(out)
		out = append(out, d)
	}
	return out
}
