package iocache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
)

// cacheTable is the name of the table holding blobs in SQL backends.
const cacheTable = "epss_cache"

// Global Manager instance for main logic.
var (
	Manager   = &CacheStoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// NewStore builds the blob store for a backend. workDir roots the filesystem,
// SQLite and Badger backends; connStr addresses the networked ones.
func NewStore(ctx context.Context, backend schema.DatabaseBackend, workDir, connStr string) (contract.BlobStore, error) {
	switch backend {
	case schema.FilesystemBackend, "":
		return NewFSStore(workDir)
	case schema.SQLiteBackend:
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work directory %q: %w", workDir, err)
		}
		return NewSQLStore(cacheTable, backend, contract.GetCacheDBFilePath(workDir))
	case schema.MySQLBackend, schema.PostgreSQLBackend:
		return NewSQLStore(cacheTable, backend, connStr)
	case schema.RedisBackend:
		return NewRedisStore(ctx, connStr)
	case schema.BadgerBackend:
		return NewBadgerStore(contract.GetBadgerDir(workDir))
	case schema.NoneBackend:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
}

// InitStores initializes the global cache manager with the configured blob store.
func InitStores(ctx context.Context, backend schema.DatabaseBackend, workDir, connStr string) error {
	var initErr error

	initOnce.Do(func() {
		// This function body runs exactly once, even with concurrent calls.
		store, err := NewStore(ctx, backend, workDir, connStr)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize %s cache: %w", backend, err)
			return
		}

		Manager.Lock()
		defer Manager.Unlock()
		Manager.store = store
	})

	// After once.Do, initErr will contain any error from the initialization block.
	return initErr
}

// CloseCaching should be called on application shutdown.
func CloseCaching() { // called in main defer
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.store != nil {
			_ = Manager.store.Close()
		}
	})
}

// ClearCache removes every cache entry for the specified backend.
// For the filesystem, it removes the cache directories under workDir.
// For SQLite and Badger, it deletes the database files.
// For SQL backends (MySQL/PostgreSQL), it drops the table.
// For Redis, it deletes the blobs and their index.
// For NoneBackend, it does nothing.
func ClearCache(ctx context.Context, backend schema.DatabaseBackend, workDir, connStr string) error {
	switch backend {
	case schema.FilesystemBackend:
		for _, dir := range []string{schema.SnapshotsDir, schema.ChangelogsByDateDir, schema.ChangelogLinksDir, schema.ChangelogsByCVEDir} {
			if err := os.RemoveAll(filepath.Join(workDir, dir)); err != nil {
				return fmt.Errorf("failed to remove %s: %w", dir, err)
			}
		}
		return nil

	case schema.SQLiteBackend:
		dbFilePath := contract.GetCacheDBFilePath(workDir)
		// Remove the file; ignore if it doesn't exist
		if err := os.Remove(dbFilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", dbFilePath, err)
		}
		return nil

	case schema.MySQLBackend:
		return clearSQLTable("mysql", connStr, cacheTable)

	case schema.PostgreSQLBackend:
		return clearSQLTable("pgx", connStr, cacheTable)

	case schema.RedisBackend:
		store, err := NewRedisStore(ctx, connStr)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return store.Clear(ctx)

	case schema.BadgerBackend:
		if err := os.RemoveAll(contract.GetBadgerDir(workDir)); err != nil {
			return fmt.Errorf("failed to remove badger directory: %w", err)
		}
		return nil

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported cache backend for clearing: %s", backend)
	}
}

// DeletePrefix removes every key under prefix and returns how many were removed.
func DeletePrefix(ctx context.Context, store contract.BlobStore, prefix string) (int, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return i, fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return len(keys), nil
}

// clearSQLTable connects to the SQL database and drops the table if it exists.
func clearSQLTable(driverName, connStr, tableName string) error {
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", driverName, err)
	}

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}

	return nil
}
