package writer

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readlist/readlist-sync/internal/config"
)

// NewDocumentWriter creates a DocumentWriter for the configured storage type.
func NewDocumentWriter(cfg *config.Config, pool *pgxpool.Pool) (DocumentWriter, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDBWriter(pool)
	case config.StorageTypeMemory:
		return NewMemoryWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.GetStorageType())
	}
}
