package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readlist/readlist-sync/internal/config"
	"github.com/readlist/readlist-sync/internal/db"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/sync/writer"
)

// DatabaseFactory creates PostgreSQL-backed storage components sharing one
// connection pool.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return NewDatabaseFactoryWithPool(cfg, pool), nil
}

// NewDatabaseFactoryWithPool creates a factory over an existing pool. The
// factory takes ownership and closes the pool in Cleanup.
func NewDatabaseFactoryWithPool(cfg *config.Config, pool *pgxpool.Pool) *DatabaseFactory {
	return &DatabaseFactory{config: cfg, pool: pool}
}

// CreateStateStore implements Factory
func (d *DatabaseFactory) CreateStateStore(_ context.Context) (state.Store, error) {
	slog.Debug("Creating database-backed state store")
	return state.NewStore(d.config, d.pool)
}

// CreateDocumentWriter implements Factory
func (d *DatabaseFactory) CreateDocumentWriter(_ context.Context) (writer.DocumentWriter, error) {
	slog.Debug("Creating database-backed document writer")
	return writer.NewDocumentWriter(d.config, d.pool)
}

// CheckReadiness pings the database
func (d *DatabaseFactory) CheckReadiness(ctx context.Context) error {
	if d.pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return d.pool.Ping(ctx)
}

// Cleanup closes the database connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}
