package iocache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
)

// BadgerStore keeps blobs in an embedded BadgerDB. Each stored value is
// prefixed with the unix time it was written.
type BadgerStore struct {
	db *badger.DB
}

var _ contract.BlobStore = &BadgerStore{} // Compile-time check

const tsLen = 8

// NewBadgerStore opens a persistent store in dir, or an in-memory one when dir is empty.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	// Disable BadgerDB's internal logging
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the value for key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) < tsLen {
			return fmt.Errorf("corrupt entry for %s", key)
		}
		out = raw[tsLen:]
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", contract.ErrBlobNotFound, key)
	}
	return out, err
}

// Put stores value under key in a single transaction.
func (s *BadgerStore) Put(_ context.Context, key string, value []byte) error {
	raw := make([]byte, tsLen+len(value))
	binary.BigEndian.PutUint64(raw, uint64(time.Now().Unix()))
	copy(raw[tsLen:], value)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Exists reports whether key has a value.
func (s *BadgerStore) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// List returns every key starting with prefix. Badger iterates in key order.
func (s *BadgerStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// GetStatus returns status information about the stored blobs.
func (s *BadgerStore) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(schema.BadgerBackend),
		Connected: !s.db.IsClosed(),
	}
	if !status.Connected {
		return status, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			status.TotalEntries++
			status.TableSizeBytes += item.ValueSize()
			err := item.Value(func(raw []byte) error {
				if len(raw) < tsLen {
					return nil
				}
				ts := time.Unix(int64(binary.BigEndian.Uint64(raw[:tsLen])), 0)
				if status.LastEntryTime.IsZero() || ts.After(status.LastEntryTime) {
					status.LastEntryTime = ts
				}
				if status.OldestEntryTime.IsZero() || ts.Before(status.OldestEntryTime) {
					status.OldestEntryTime = ts
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return status, err
}
