package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/promo-api/internal/promo"
)

type memoryEntry struct {
	p       promo.Promotion
	version int64
}

// MemoryStore is an in-process Store with per-product version counters. It
// backs tests and the memory backend; semantics mirror the Postgres store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]memoryEntry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, productID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.m[productID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{Promotion: entry.p.Clone(), Version: entry.version}, nil
}

// UpdateIf implements Store.
func (s *MemoryStore) UpdateIf(_ context.Context, productID string, version int64, next promo.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.m[productID]
	if !ok {
		return ErrNotFound
	}
	if entry.version != version {
		return ErrVersionConflict
	}
	s.m[productID] = memoryEntry{p: next.Clone(), version: version + 1}
	return nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, productID string, p promo.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.m[productID]
	s.m[productID] = memoryEntry{p: p.Clone(), version: entry.version + 1}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.m))
	for _, entry := range s.m {
		out = append(out, Snapshot{Promotion: entry.p.Clone(), Version: entry.version})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Promotion.ProductID < out[j].Promotion.ProductID
	})
	return out, nil
}
