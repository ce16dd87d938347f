package writer

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

type docKey struct {
	user uuid.UUID
	id   string
}

// MemoryWriter is an in-process DocumentWriter. It also answers reads so
// tests and the memory storage mode can inspect the cache.
type MemoryWriter struct {
	mu   sync.RWMutex
	docs map[docKey]CachedDocument
}

// NewMemoryWriter creates an empty MemoryWriter
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{docs: make(map[docKey]CachedDocument)}
}

// Upsert implements DocumentWriter
func (m *MemoryWriter) Upsert(_ context.Context, docs []CachedDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, d := range dedupe(docs) {
		k := docKey{d.UserID, d.DocumentID}
		if existing, ok := m.docs[k]; ok {
			if existing.UpdatedAt.After(d.UpdatedAt) {
				continue
			}
			if d.Content == nil {
				d.Content = existing.Content
			}
		}
		m.docs[k] = d
		written++
	}
	return written, nil
}

// Get returns a cached document
func (m *MemoryWriter) Get(userID uuid.UUID, documentID string) (CachedDocument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docKey{userID, documentID}]
	return d, ok
}

// List returns a user's documents in a location, most recently moved first.
func (m *MemoryWriter) List(userID uuid.UUID, loc contentapi.Location) []CachedDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CachedDocument
	for k, d := range m.docs {
		if k.user == userID && d.Location == loc {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMovedAt, out[j].LastMovedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// Len returns the number of cached documents
func (m *MemoryWriter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
