// Package iocache is for caching I/O calls.
package iocache

import (
	"sync"

	"github.com/huangsam/epss/internal/contract"
)

// CacheStoreManager holds the blob store selected at startup.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointer during initialization
	store        contract.BlobStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetStore returns the blob store.
func (mgr *CacheStoreManager) GetStore() contract.BlobStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.store
}
