package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryVectorStore is a brute-force in-process vector store. Nothing is
// persisted; Finalize is a no-op.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
	order   []string
	closed  bool
}

var _ VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore(cfg VectorStoreConfig) (*MemoryVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimensions)
	}
	return &MemoryVectorStore{dim: cfg.Dimensions, vectors: make(map[string][]float32)}, nil
}

func (s *MemoryVectorStore) Upsert(_ context.Context, items []VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, it := range items {
		if len(it.Vector) != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: len(it.Vector)}
		}
	}
	for _, it := range items {
		if _, ok := s.vectors[it.ID]; !ok {
			s.order = append(s.order, it.ID)
		}
		v := make([]float32, len(it.Vector))
		copy(v, it.Vector)
		s.vectors[it.ID] = v
	}
	return nil
}

func (s *MemoryVectorStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.dim {
		return nil, ErrDimensionMismatch{Expected: s.dim, Got: len(query)}
	}
	vecs := make([][]float32, len(s.order))
	for i, id := range s.order {
		vecs[i] = s.vectors[id]
	}
	return rankByCosine(query, s.order, vecs, k)
}

func (s *MemoryVectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.vectors[id]; ok {
			drop[id] = true
			delete(s.vectors, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *MemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *MemoryVectorStore) Finalize(context.Context) error { return nil }

func (s *MemoryVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
