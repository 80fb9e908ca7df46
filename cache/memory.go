package cache

import (
	"context"
	"sync"

	"github.com/vegafs/streamengine/pipeline"
)

// MemoryStore implements Store in memory, primarily for tests and for
// single-process deployments that don't need durability across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Lookup implements lookup(fingerprint) -> Option<CacheEntry>.
func (s *MemoryStore) Lookup(ctx context.Context, fp pipeline.Fingerprint) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fp.String()]
	return e, ok, nil
}

// Insert implements insert(CacheEntry).
func (s *MemoryStore) Insert(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Fingerprint] = e
	return nil
}
