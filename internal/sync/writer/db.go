package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var copyColumns = []string{
	"user_id", "document_id", "location", "title", "author", "url", "source_url",
	"category", "summary", "content", "word_count", "tags", "created_at",
	"updated_at", "last_moved_at", "synced_at",
}

const (
	createTempTableSQL = `CREATE TEMP TABLE tmp_cached_documents
	(LIKE cached_documents INCLUDING DEFAULTS) ON COMMIT DROP`

	mergeSQL = `INSERT INTO cached_documents (
	user_id, document_id, location, title, author, url, source_url, category, summary,
	content, word_count, tags, created_at, updated_at, last_moved_at, synced_at)
SELECT user_id, document_id, location, title, author, url, source_url, category, summary,
	content, word_count, tags, created_at, updated_at, last_moved_at, synced_at
FROM tmp_cached_documents
ON CONFLICT (user_id, document_id) DO UPDATE SET
	location = EXCLUDED.location,
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	url = EXCLUDED.url,
	source_url = EXCLUDED.source_url,
	category = EXCLUDED.category,
	summary = EXCLUDED.summary,
	content = COALESCE(EXCLUDED.content, cached_documents.content),
	word_count = EXCLUDED.word_count,
	tags = EXCLUDED.tags,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	last_moved_at = EXCLUDED.last_moved_at,
	synced_at = EXCLUDED.synced_at
WHERE cached_documents.updated_at <= EXCLUDED.updated_at`
)

type dbWriter struct {
	pool *pgxpool.Pool
}

// NewDBWriter creates a PostgreSQL DocumentWriter. The caller owns the pool.
func NewDBWriter(pool *pgxpool.Pool) (DocumentWriter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbWriter{pool: pool}, nil
}

// Upsert copies the batch into a temporary table and merges it into
// cached_documents in one statement, inside one transaction.
func (d *dbWriter) Upsert(ctx context.Context, docs []CachedDocument) (int, error) {
	docs = dedupe(docs)
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("Failed to roll back document upsert", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, createTempTableSQL); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"tmp_cached_documents"}, copyColumns,
		pgx.CopyFromSlice(len(docs), func(i int) ([]any, error) {
			doc := docs[i]
			tags := doc.Tags
			if tags == nil {
				tags = map[string]any{}
			}
			var createdAt any
			if !doc.CreatedAt.IsZero() {
				createdAt = doc.CreatedAt
			}
			return []any{
				doc.UserID, doc.DocumentID, string(doc.Location), doc.Title, doc.Author,
				doc.URL, doc.SourceURL, doc.Category, doc.Summary, doc.Content,
				doc.WordCount, tags, createdAt, doc.UpdatedAt, doc.LastMovedAt, doc.SyncedAt,
			}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("failed to copy documents: %w", err)
	}

	tag, err := tx.Exec(ctx, mergeSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to merge documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
