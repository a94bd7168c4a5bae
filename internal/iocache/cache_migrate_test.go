package iocache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateStore_UnsupportedBackends(t *testing.T) {
	for _, backend := range []schema.DatabaseBackend{schema.NoneBackend, schema.FilesystemBackend, schema.RedisBackend, schema.BadgerBackend} {
		err := MigrateStore(backend, "", -1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "migrations are not supported")
	}
}

func TestMigrateStore_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_migration.db")

	// Run migration to latest version
	err := MigrateStore(schema.SQLiteBackend, dbPath, -1)
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	// Run migration again (should be a no-op)
	assert.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, -1))

	// Step down to version 1, then roll back everything
	assert.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, 1))
	assert.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, 0))

	// Migrate back up to version 2
	assert.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, 2))
}

func TestMigrateStore_SQLiteInMemory(t *testing.T) {
	err := MigrateStore(schema.SQLiteBackend, ":memory:", -1)
	require.NoError(t, err)
}

func TestMigrateStore_CompatibleWithStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "compat.db")
	require.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, -1))

	// A migrated database is usable by the store without further setup
	store, err := NewSQLStore(cacheTable, schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
