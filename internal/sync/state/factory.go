package state

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readlist/readlist-sync/internal/config"
)

// NewStore returns the Store for the configured storage type. The pool must
// not be nil when database storage is configured.
func NewStore(cfg *config.Config, pool *pgxpool.Pool) (Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStore(pool), nil
	case config.StorageTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.GetStorageType())
	}
}
