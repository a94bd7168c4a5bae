package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
// The store is only opened when openStore is set.
func cacheSetup(openStore bool) error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	// Get cache-related config values
	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")
	workDir := viper.GetString("workdir")
	if workDir == "" {
		workDir = contract.GetDefaultWorkDir()
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("invalid workdir %q: %w", workDir, err)
	}

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr
	cfg.WorkDir = absWorkDir
	cfg.Output = schema.OutputMode(viper.GetString("output"))
	cfg.OutputFile = viper.GetString("output-file")

	if !openStore {
		return nil
	}
	if err := iocache.InitStores(rootCtx, backend, absWorkDir, connStr); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands that read the store.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup(true)
}

// cacheConfigWrapper wraps cacheSetup for cache commands that manage the backend directly.
func cacheConfigWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup(false)
}

// cacheCmd focused on cache management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup used by the score commands. This avoids building the
// score source and engine for simple cache operations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the snapshot and changelog cache backend",
	Long: `Manage the backend that holds cached snapshots, changelogs and partitions.

Supported backends: filesystem (default), SQLite, MySQL, PostgreSQL, Redis,
Badger, or None (in-memory)

Subcommands:
  status  - Show cache statistics and connection info
  clear   - Remove all cached data
  migrate - Run schema migrations for SQL backends

Examples:
  # Check cache status
  epss cache status

  # Clear the whole cache of a Redis backend
  EPSS_CACHE_BACKEND=redis EPSS_CACHE_DB_CONNECT="redis://localhost:6379/0" epss cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached data from the backend",
	Long: `Delete every cached entry from the configured backend.

Use 'epss clear' to remove entries by kind instead.

For filesystem: Removes the cache directories
For SQLite and Badger: Deletes the database files
For MySQL/PostgreSQL: Drops the cache table
For Redis: Deletes the cached blobs and their index

Examples:
  # Clear the default cache
  epss cache clear

  # Clear MySQL cache (set connection string via env variable)
  EPSS_CACHE_BACKEND=mysql EPSS_CACHE_DB_CONNECT="..." epss cache clear`,
	PreRunE: cacheConfigWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearCache(rootCtx, cfg.CacheBackend, cfg.WorkDir, cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the cache backend.

Displays:
- Backend type and connection status
- Total number of cached entries
- Last and oldest cache entry timestamps
- Cache database size

Examples:
  # Check cache status
  epss cache status

  # Machine-readable status
  epss cache status --output json`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		status, err := iocache.Manager.GetStore().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		if err := ow.WriteStatus(status, cfg); err != nil {
			contract.LogFatal("Failed to write cache status", err)
		}
	},
}

// cacheMigrateCmd runs database migrations for the SQL blob store.
var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the SQL cache backends.

By default, migrates to the latest version. Use --target-version for specific versions.
Only sqlite, mysql and postgresql backends hold a schema.

Examples:
  # Migrate to latest version (default)
  epss cache migrate --cache-backend sqlite

  # Rollback to initial state
  epss cache migrate --cache-backend postgresql --target-version 0`,
	PreRunE: cacheConfigWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		connStr := cfg.CacheDBConnect
		if cfg.CacheBackend == schema.SQLiteBackend {
			connStr = contract.GetCacheDBFilePath(cfg.WorkDir)
		}
		targetVersion := viper.GetInt("target-version")
		if err := iocache.MigrateStore(cfg.CacheBackend, connStr, targetVersion); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
		fmt.Println("Migrations applied successfully.")
	},
}
