package database_test

import (
	"context"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readlist/readlist-sync/database"
	"github.com/readlist/readlist-sync/database/dbtest"
)

func TestGetMigrate_UnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := database.GetMigrate("mysql://nowhere/db")
	require.Error(t, err)
}

func TestMigrations_UpDownUp(t *testing.T) {
	t.Parallel()

	pool, connStr := dbtest.SetupTestDB(t)

	version, dirty, err := database.Version(connStr)
	require.NoError(t, err)
	assert.False(t, dirty)

	ups, err := fs.Glob(os.DirFS("migrations"), "*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, uint(len(ups)), version)

	require.NoError(t, database.MigrateDown(connStr, 0))

	var exists bool
	err = pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'sync_state')`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, database.MigrateUp(connStr))
	require.NoError(t, database.MigrateUp(connStr), "second up is a no-op")
}
