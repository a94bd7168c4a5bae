package iocache

import (
	"context"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetStore implements the CacheManager interface.
func (m *MockCacheManager) GetStore() contract.BlobStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.BlobStore)
	return store
}

// MockBlobStore is a mock implementation of BlobStore for testing.
type MockBlobStore struct {
	mock.Mock
}

var _ contract.BlobStore = &MockBlobStore{} // Compile-time check

// Get implements the BlobStore interface.
func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Put implements the BlobStore interface.
func (m *MockBlobStore) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Exists implements the BlobStore interface.
func (m *MockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// Delete implements the BlobStore interface.
func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// List implements the BlobStore interface.
func (m *MockBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

// Close implements the BlobStore interface.
func (m *MockBlobStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetStatus implements the BlobStore interface.
func (m *MockBlobStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}
