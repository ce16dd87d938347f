package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

const stateColumns = `user_id, inbox_cursor, library_cursor, archive_cursor, shortlist_cursor, feed_cursor,
	initial_backfill_done, in_progress, lock_acquired_at, window_started_at, window_request_count,
	last_429_at, next_allowed_at, last_sync_at, created_at, updated_at`

// cursorOrder is the column order of the cursor columns in stateColumns.
var cursorOrder = []contentapi.Location{
	contentapi.LocationInbox,
	contentapi.LocationLibrary,
	contentapi.LocationArchive,
	contentapi.LocationShortlist,
	contentapi.LocationFeed,
}

const (
	listEligibleSQL = `SELECT ` + stateColumns + `
FROM sync_state
WHERE (NOT in_progress AND (next_allowed_at IS NULL OR next_allowed_at <= $1))
   OR (in_progress AND (lock_acquired_at IS NULL OR lock_acquired_at < $2))
ORDER BY next_allowed_at NULLS FIRST, user_id`

	// The stale predicate lives in the WHERE clause so that taking a free
	// lock and reclaiming a stale one are the same atomic statement. prev
	// only feeds the reclaim log line.
	acquireLockSQL = `UPDATE sync_state AS s
SET in_progress = true, lock_acquired_at = $2, updated_at = now()
FROM (SELECT user_id, in_progress AS was_in_progress, lock_acquired_at AS prev_lock FROM sync_state WHERE user_id = $1) AS prev
WHERE s.user_id = $1
  AND prev.user_id = s.user_id
  AND (NOT s.in_progress OR s.lock_acquired_at IS NULL OR s.lock_acquired_at < $3)
RETURNING s.user_id, s.inbox_cursor, s.library_cursor, s.archive_cursor, s.shortlist_cursor, s.feed_cursor,
	s.initial_backfill_done, s.in_progress, s.lock_acquired_at, s.window_started_at, s.window_request_count,
	s.last_429_at, s.next_allowed_at, s.last_sync_at, s.created_at, s.updated_at,
	prev.was_in_progress, prev.prev_lock`

	releaseLockSQL = `UPDATE sync_state SET
	in_progress = false,
	lock_acquired_at = NULL,
	inbox_cursor = CASE WHEN $3::boolean THEN $4::text ELSE inbox_cursor END,
	library_cursor = CASE WHEN $5::boolean THEN $6::text ELSE library_cursor END,
	archive_cursor = CASE WHEN $7::boolean THEN $8::text ELSE archive_cursor END,
	shortlist_cursor = CASE WHEN $9::boolean THEN $10::text ELSE shortlist_cursor END,
	feed_cursor = CASE WHEN $11::boolean THEN $12::text ELSE feed_cursor END,
	initial_backfill_done = initial_backfill_done OR $13,
	window_started_at = $14,
	window_request_count = $15,
	last_429_at = COALESCE($16, last_429_at),
	next_allowed_at = $17,
	last_sync_at = COALESCE($18, last_sync_at),
	updated_at = now()
WHERE user_id = $1 AND in_progress AND lock_acquired_at = $2`

	getStateSQL = `SELECT ` + stateColumns + ` FROM sync_state WHERE user_id = $1`

	getCredentialSQL = `SELECT encrypted_token FROM content_api_credentials WHERE user_id = $1`
)

type dbStore struct {
	pool *pgxpool.Pool
}

// NewDBStore creates a PostgreSQL backed Store
func NewDBStore(pool *pgxpool.Pool) Store {
	return &dbStore{pool: pool}
}

func (d *dbStore) Enable(ctx context.Context, userID uuid.UUID, encryptedToken string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO content_api_credentials (user_id, encrypted_token) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET encrypted_token = EXCLUDED.encrypted_token, updated_at = now()`,
		userID, encryptedToken); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_state (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("failed to create sync state: %w", err)
	}

	return tx.Commit(ctx)
}

func (d *dbStore) Disable(ctx context.Context, userID uuid.UUID) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM sync_state WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM content_api_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (d *dbStore) ListEligible(ctx context.Context, now, staleBefore time.Time) ([]SyncState, error) {
	rows, err := d.pool.Query(ctx, listEligibleSQL, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}
	defer rows.Close()

	var result []SyncState
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}
	return result, nil
}

func (d *dbStore) AcquireLock(ctx context.Context, userID uuid.UUID, now, staleBefore time.Time) (*Lock, error) {
	var (
		wasInProgress bool
		prevLock      *time.Time
	)
	s, err := scanState(d.pool.QueryRow(ctx, acquireLockSQL, userID, lockTime(now), staleBefore), &wasInProgress, &prevLock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lock := &Lock{State: s, AcquiredAt: lockTime(*s.LockAcquiredAt)}
	if wasInProgress {
		if prevLock != nil {
			lock.ReclaimedFrom = prevLock
		} else {
			lock.ReclaimedFrom = &time.Time{}
		}
	}
	return lock, nil
}

func (d *dbStore) ReleaseLock(ctx context.Context, userID uuid.UUID, release Release) error {
	args := []any{userID, lockTime(release.LockAcquiredAt)}
	for _, loc := range cursorOrder {
		value, set := release.Cursors[loc]
		args = append(args, set, value)
	}
	args = append(args,
		release.InitialBackfillDone,
		release.WindowStartedAt,
		release.WindowRequestCount,
		release.Last429At,
		release.NextAllowedAt,
		release.LastSyncAt,
	)

	tag, err := d.pool.Exec(ctx, releaseLockSQL, args...)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockLost
	}
	return nil
}

func (d *dbStore) Get(ctx context.Context, userID uuid.UUID) (*SyncState, error) {
	s, err := scanState(d.pool.QueryRow(ctx, getStateSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return s, nil
}

func (d *dbStore) GetCredential(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string
	if err := d.pool.QueryRow(ctx, getCredentialSQL, userID).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCredentialNotFound
		}
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return token, nil
}

// scanState scans the stateColumns in order, followed by extra destinations.
func scanState(row pgx.Row, extra ...any) (*SyncState, error) {
	s := &SyncState{Cursors: make(map[contentapi.Location]*string, len(cursorOrder))}
	cursors := make([]*string, len(cursorOrder))

	dest := []any{&s.UserID}
	for i := range cursors {
		dest = append(dest, &cursors[i])
	}
	dest = append(dest,
		&s.InitialBackfillDone,
		&s.InProgress,
		&s.LockAcquiredAt,
		&s.WindowStartedAt,
		&s.WindowRequestCount,
		&s.Last429At,
		&s.NextAllowedAt,
		&s.LastSyncAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, loc := range cursorOrder {
		if cursors[i] != nil {
			s.Cursors[loc] = cursors[i]
		}
	}
	return s, nil
}
