package app

import (
	"github.com/readlist/readlist-sync/internal/app/storage"
	"github.com/readlist/readlist-sync/internal/sync/coordinator"
	"github.com/readlist/readlist-sync/internal/sync/state"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator runs sync passes
	SyncCoordinator coordinator.Coordinator

	// StateStore holds the per-user sync state
	StateStore state.Store

	// Storage owns the storage backend and its resources
	Storage storage.Factory
}

// Cleanup releases the storage backend
func (c *AppComponents) Cleanup() {
	if c != nil && c.Storage != nil {
		c.Storage.Cleanup()
	}
}
