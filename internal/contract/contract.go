// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"errors"
	"time"

	"github.com/huangsam/epss/schema"
)

// ErrBlobNotFound is returned by BlobStore.Get when the key has no value.
var ErrBlobNotFound = errors.New("blob not found")

// ScoreSource defines the operations needed from the upstream score publisher.
// This allows the cache to be tested without network access.
type ScoreSource interface {
	// Fetch returns the raw scores published for a date. A date without a published
	// file yields an error matching schema.ErrNotAvailable.
	Fetch(ctx context.Context, date time.Time) ([]schema.Score, error)

	// LatestDate returns the most recent date with published scores.
	LatestDate(ctx context.Context) (time.Time, error)
}

// BlobStore defines the key-value storage holding cache entries.
// Existence of a key is the source of truth for "this entry is materialized".
type BlobStore interface {
	// Get returns the value for key, or an error wrapping ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. Readers observe either the old value or the
	// complete new one, never a partial write.
	Put(ctx context.Context, key string, value []byte) error

	// Exists reports whether key has a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetStatus returns status information about the store.
	GetStatus() (schema.CacheStatus, error)

	Close() error
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetStore() BlobStore
}
