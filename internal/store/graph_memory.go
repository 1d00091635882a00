package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"slices"
	"sync"
)

// MemoryGraphStore keeps the graph in maps and snapshots it to Path with
// encoding/gob on Finalize.
type MemoryGraphStore struct {
	mu        sync.RWMutex
	path      string
	entities  map[string]*Entity
	relations map[EdgeKey]*Relation
	adjacency map[string][]EdgeKey
	dirty     bool
	closed    bool
}

var _ GraphStore = (*MemoryGraphStore)(nil)

type graphSnapshot struct {
	Entities  []*Entity
	Relations []*Relation
}

// NewMemoryGraphStore creates a store, loading the snapshot at path when
// present. An empty path never persists.
func NewMemoryGraphStore(path string) (*MemoryGraphStore, error) {
	s := &MemoryGraphStore{
		path:      path,
		entities:  make(map[string]*Entity),
		relations: make(map[EdgeKey]*Relation),
		adjacency: make(map[string][]EdgeKey),
	}
	if path != "" && fileExists(path) {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryGraphStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open graph snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var snap graphSnapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode graph snapshot %s: %w", s.path, err)
	}
	for _, e := range snap.Entities {
		s.entities[e.Name] = e
	}
	for _, r := range snap.Relations {
		s.putRelation(r)
	}
	return nil
}

func (s *MemoryGraphStore) putRelation(r *Relation) {
	k := r.Key()
	if _, ok := s.relations[k]; !ok {
		s.adjacency[k.Source] = append(s.adjacency[k.Source], k)
		if k.Target != k.Source {
			s.adjacency[k.Target] = append(s.adjacency[k.Target], k)
		}
	}
	s.relations[k] = r
}

func (s *MemoryGraphStore) UpsertEntities(_ context.Context, entities []*Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}
	for _, in := range entities {
		if in == nil || in.Name == "" {
			continue
		}
		s.entities[in.Name] = mergeEntity(s.entities[in.Name], in)
		s.dirty = true
	}
	return nil
}

func (s *MemoryGraphStore) UpsertRelations(_ context.Context, relations []*Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}
	for _, in := range relations {
		if in == nil || in.Source == "" || in.Target == "" {
			continue
		}
		s.putRelation(mergeRelation(s.relations[in.Key()], in))
		s.dirty = true
	}
	return nil
}

func (s *MemoryGraphStore) GetEntities(_ context.Context, names []string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(names))
	for _, n := range names {
		if e, ok := s.entities[n]; ok {
			c := *e
			c.SourceIDs = slices.Clone(e.SourceIDs)
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryGraphStore) GetRelations(_ context.Context, keys []EdgeKey) ([]*Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		if r, ok := s.relations[NewEdgeKey(k.Source, k.Target)]; ok {
			out = append(out, cloneRelation(r))
		}
	}
	return out, nil
}

func (s *MemoryGraphStore) EntityRelations(_ context.Context, name string) ([]*Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.adjacency[name]
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneRelation(s.relations[k]))
	}
	slices.SortStableFunc(out, func(a, b *Relation) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		}
		return 0
	})
	return out, nil
}

func cloneRelation(r *Relation) *Relation {
	c := *r
	c.SourceIDs = slices.Clone(r.SourceIDs)
	return &c
}

func (s *MemoryGraphStore) Counts(context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), len(s.relations), nil
}

// Finalize writes the snapshot when the graph changed since the last one.
func (s *MemoryGraphStore) Finalize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" || !s.dirty {
		return nil
	}
	snap := graphSnapshot{
		Entities:  make([]*Entity, 0, len(s.entities)),
		Relations: make([]*Relation, 0, len(s.relations)),
	}
	for _, e := range s.entities {
		snap.Entities = append(snap.Entities, e)
	}
	for _, r := range s.relations {
		snap.Relations = append(snap.Relations, r)
	}
	err := writeAtomic(s.path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := gob.NewEncoder(w).Encode(&snap); err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		return fmt.Errorf("failed to save graph snapshot: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *MemoryGraphStore) Close() error {
	if err := s.Finalize(context.Background()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
