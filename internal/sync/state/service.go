// Package state persists the per-user sync state: location cursors, the
// request budget window, backoff timestamps and the advisory lock that keeps
// two invocations from syncing the same user at once.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

var (
	// ErrNotFound is returned when a user has no sync state row.
	ErrNotFound = errors.New("sync state not found")

	// ErrCredentialNotFound is returned when a user has no stored API token.
	ErrCredentialNotFound = errors.New("content api credential not found")

	// ErrLockLost is returned by ReleaseLock when the lock was reclaimed by
	// another invocation after going stale. Nothing was written.
	ErrLockLost = errors.New("sync lock lost")
)

// SyncState is one user's row.
type SyncState struct {
	UserID uuid.UUID

	// Cursors holds the encoded cursor per location; a missing or nil entry
	// means the location has never been synced.
	Cursors map[contentapi.Location]*string

	InitialBackfillDone bool
	InProgress          bool
	LockAcquiredAt      *time.Time

	WindowStartedAt    *time.Time
	WindowRequestCount int

	Last429At     *time.Time
	NextAllowedAt *time.Time
	LastSyncAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cursor returns the encoded cursor of a location, nil when unset.
func (s *SyncState) Cursor(loc contentapi.Location) *string {
	if s == nil || s.Cursors == nil {
		return nil
	}
	return s.Cursors[loc]
}

// Clone returns a deep copy.
func (s *SyncState) Clone() *SyncState {
	if s == nil {
		return nil
	}
	out := *s
	out.Cursors = make(map[contentapi.Location]*string, len(s.Cursors))
	for loc, c := range s.Cursors {
		out.Cursors[loc] = cloneString(c)
	}
	out.LockAcquiredAt = cloneTime(s.LockAcquiredAt)
	out.WindowStartedAt = cloneTime(s.WindowStartedAt)
	out.Last429At = cloneTime(s.Last429At)
	out.NextAllowedAt = cloneTime(s.NextAllowedAt)
	out.LastSyncAt = cloneTime(s.LastSyncAt)
	return &out
}

// Lock is a successfully acquired per-user lock.
type Lock struct {
	// State is the row as it was written by the acquiring update.
	State *SyncState

	// AcquiredAt is the stored lock timestamp. ReleaseLock only succeeds
	// while the row still carries this exact value.
	AcquiredAt time.Time

	// ReclaimedFrom is set when a stale lock was taken over. It holds the
	// previous holder's lock time, or the zero time if that was never set.
	ReclaimedFrom *time.Time
}

// Release is the single write that ends a sync attempt.
type Release struct {
	// LockAcquiredAt guards the write; see Lock.AcquiredAt.
	LockAcquiredAt time.Time

	// Cursors replaces the stored cursors of the listed locations. Locations
	// absent from the map keep their stored cursor.
	Cursors map[contentapi.Location]*string

	// InitialBackfillDone is OR-ed into the stored flag; it never goes back
	// to false.
	InitialBackfillDone bool

	WindowStartedAt    *time.Time
	WindowRequestCount int

	// Last429At and LastSyncAt keep their stored value when nil.
	Last429At  *time.Time
	LastSyncAt *time.Time

	NextAllowedAt *time.Time
}

// Store is the durable sync state store.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/readlist/readlist-sync/internal/sync/state Store
type Store interface {
	// Enable stores the user's encrypted API token and creates a sync
	// state row with empty cursors if none exists.
	Enable(ctx context.Context, userID uuid.UUID, encryptedToken string) error

	// Disable removes the user's sync state and credential. Cached
	// documents are left in place.
	Disable(ctx context.Context, userID uuid.UUID) error

	// ListEligible returns users that may be synced now: not locked and past
	// their next allowed time, or holding a lock acquired before staleBefore.
	ListEligible(ctx context.Context, now, staleBefore time.Time) ([]SyncState, error)

	// AcquireLock takes the user's lock with a single conditional write. It
	// returns nil without error when another invocation holds a fresh lock
	// or the row no longer exists.
	AcquireLock(ctx context.Context, userID uuid.UUID, now, staleBefore time.Time) (*Lock, error)

	// ReleaseLock persists the outcome and clears the lock in one write.
	// Returns ErrLockLost when the lock no longer belongs to the caller.
	ReleaseLock(ctx context.Context, userID uuid.UUID, release Release) error

	// Get returns the user's state or ErrNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*SyncState, error)

	// GetCredential returns the encrypted API token or ErrCredentialNotFound.
	GetCredential(ctx context.Context, userID uuid.UUID) (string, error)
}

// lockTime truncates to the precision PostgreSQL stores, so the value used
// as the release guard compares equal to the stored one.
func lockTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
