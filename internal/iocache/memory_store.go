package iocache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/puzpuzpuz/xsync/v4"
)

type memoryEntry struct {
	value []byte
	ts    time.Time
}

// MemoryStore keeps blobs in process memory. It backs the "none" backend,
// where nothing outlives the command but a single run still reuses its work.
type MemoryStore struct {
	entries *xsync.Map[string, memoryEntry]
}

var _ contract.BlobStore = &MemoryStore{} // Compile-time check

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: xsync.NewMap[string, memoryEntry]()}
}

// Get returns a copy of the value for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.entries.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrBlobNotFound, key)
	}
	return append([]byte(nil), e.value...), nil
}

// Put stores a copy of value under key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.entries.Store(key, memoryEntry{value: append([]byte(nil), value...), ts: time.Now()})
	return nil
}

// Exists reports whether key has a value.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.entries.Load(key)
	return ok, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// List returns every key starting with prefix, sorted.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	s.entries.Range(func(key string, _ memoryEntry) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

// Close drops every entry.
func (s *MemoryStore) Close() error {
	s.entries.Clear()
	return nil
}

// GetStatus returns status information about the in-memory entries.
func (s *MemoryStore) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(schema.NoneBackend),
		Connected: true,
	}
	s.entries.Range(func(_ string, e memoryEntry) bool {
		status.TotalEntries++
		status.TableSizeBytes += int64(len(e.value))
		if status.LastEntryTime.IsZero() || e.ts.After(status.LastEntryTime) {
			status.LastEntryTime = e.ts
		}
		if status.OldestEntryTime.IsZero() || e.ts.Before(status.OldestEntryTime) {
			status.OldestEntryTime = e.ts
		}
		return true
	})
	return status, nil
}
