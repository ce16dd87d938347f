package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

type memoryStore struct {
	mu          sync.Mutex
	states      map[uuid.UUID]*SyncState
	credentials map[uuid.UUID]string
	now         func() time.Time
}

// NewMemoryStore creates a Store that keeps state in process memory. Every
// method holds one mutex for its whole duration, which gives the same
// single-statement atomicity the database store relies on.
func NewMemoryStore() Store {
	return &memoryStore{
		states:      make(map[uuid.UUID]*SyncState),
		credentials: make(map[uuid.UUID]string),
		now:         time.Now,
	}
}

func (m *memoryStore) Enable(_ context.Context, userID uuid.UUID, encryptedToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.credentials[userID] = encryptedToken
	if _, ok := m.states[userID]; !ok {
		now := m.now().UTC()
		m.states[userID] = &SyncState{
			UserID:    userID,
			Cursors:   make(map[contentapi.Location]*string),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}

func (m *memoryStore) Disable(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[userID]; !ok {
		return ErrNotFound
	}
	delete(m.states, userID)
	delete(m.credentials, userID)
	return nil
}

func (m *memoryStore) ListEligible(_ context.Context, now, staleBefore time.Time) ([]SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []SyncState
	for _, s := range m.states {
		if eligible(s, now, staleBefore) {
			result = append(result, *s.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].NextAllowedAt, result[j].NextAllowedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return result[i].UserID.String() < result[j].UserID.String()
	})
	return result, nil
}

func (m *memoryStore) AcquireLock(_ context.Context, userID uuid.UUID, now, staleBefore time.Time) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[userID]
	if !ok || !lockable(s, staleBefore) {
		return nil, nil
	}

	var reclaimed *time.Time
	if s.InProgress {
		prev := time.Time{}
		if s.LockAcquiredAt != nil {
			prev = *s.LockAcquiredAt
		}
		reclaimed = &prev
	}

	acquiredAt := lockTime(now)
	s.InProgress = true
	s.LockAcquiredAt = &acquiredAt
	s.UpdatedAt = m.now().UTC()

	return &Lock{State: s.Clone(), AcquiredAt: acquiredAt, ReclaimedFrom: reclaimed}, nil
}

func (m *memoryStore) ReleaseLock(_ context.Context, userID uuid.UUID, release Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[userID]
	if !ok || !s.InProgress || s.LockAcquiredAt == nil ||
		!s.LockAcquiredAt.Equal(lockTime(release.LockAcquiredAt)) {
		return ErrLockLost
	}

	s.InProgress = false
	s.LockAcquiredAt = nil
	for loc, c := range release.Cursors {
		if c == nil {
			delete(s.Cursors, loc)
			continue
		}
		s.Cursors[loc] = cloneString(c)
	}
	s.InitialBackfillDone = s.InitialBackfillDone || release.InitialBackfillDone
	s.WindowStartedAt = cloneTime(release.WindowStartedAt)
	s.WindowRequestCount = release.WindowRequestCount
	if release.Last429At != nil {
		s.Last429At = cloneTime(release.Last429At)
	}
	s.NextAllowedAt = cloneTime(release.NextAllowedAt)
	if release.LastSyncAt != nil {
		s.LastSyncAt = cloneTime(release.LastSyncAt)
	}
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memoryStore) Get(_ context.Context, userID uuid.UUID) (*SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memoryStore) GetCredential(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.credentials[userID]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return token, nil
}

func eligible(s *SyncState, now, staleBefore time.Time) bool {
	if s.InProgress {
		return s.LockAcquiredAt == nil || s.LockAcquiredAt.Before(staleBefore)
	}
	return s.NextAllowedAt == nil || !s.NextAllowedAt.After(now)
}

func lockable(s *SyncState, staleBefore time.Time) bool {
	return !s.InProgress || s.LockAcquiredAt == nil || s.LockAcquiredAt.Before(staleBefore)
}
