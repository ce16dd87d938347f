// Package storage creates the storage-dependent components as a family, so
// the state store and the document writer always share one backend.
package storage

import (
	"context"
	"fmt"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/sync/writer"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components.
type Factory interface {
	// CreateStateStore creates the per-user sync state store.
	CreateStateStore(ctx context.Context) (state.Store, error)

	// CreateDocumentWriter creates the document cache writer.
	CreateDocumentWriter(ctx context.Context) (writer.DocumentWriter, error)

	// CheckReadiness reports whether the backend can serve requests.
	CheckReadiness(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory:
		return NewMemoryFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
