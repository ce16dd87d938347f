package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/sync/writer"
)

// MemoryFactory creates in-process storage components. Each component is
// created once so that every caller shares the same data.
type MemoryFactory struct {
	config *config.Config

	once   sync.Once
	store  state.Store
	writer writer.DocumentWriter
	err    error
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a new memory-backed storage factory.
func NewMemoryFactory(cfg *config.Config) (*MemoryFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	slog.Warn("Using in-memory storage, sync state is lost on restart")
	return &MemoryFactory{config: cfg}, nil
}

func (m *MemoryFactory) init() error {
	m.once.Do(func() {
		m.store, m.err = state.NewStore(m.config, nil)
		if m.err != nil {
			return
		}
		m.writer, m.err = writer.NewDocumentWriter(m.config, nil)
	})
	return m.err
}

// CreateStateStore implements Factory
func (m *MemoryFactory) CreateStateStore(_ context.Context) (state.Store, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.store, nil
}

// CreateDocumentWriter implements Factory
func (m *MemoryFactory) CreateDocumentWriter(_ context.Context) (writer.DocumentWriter, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.writer, nil
}

// CheckReadiness implements Factory
func (*MemoryFactory) CheckReadiness(_ context.Context) error {
	return nil
}

// Cleanup implements Factory
func (*MemoryFactory) Cleanup() {}
