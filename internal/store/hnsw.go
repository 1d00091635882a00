package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore on coder/hnsw. The graph is exported to
// Path and the string ID mapping to Path+".meta" on Finalize.
//
// Replaced or deleted vectors are orphaned in the graph rather than removed;
// searches over-fetch by the orphan count to keep k live results.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	dirty   bool

	closed bool
}

type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates a store, loading a previous snapshot from cfg.Path
// when one exists.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw store needs positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	s := &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}

	if cfg.Path != "" && fileExists(cfg.Path) && fileExists(cfg.Path+".meta") {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Upsert inserts vectors; an existing ID is re-pointed at a new node.
func (s *HNSWStore) Upsert(_ context.Context, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, it := range items {
		if len(it.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(it.Vector)}
		}
	}

	for _, it := range items {
		if old, ok := s.idMap[it.ID]; ok {
			delete(s.keyMap, old)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[it.ID] = key
		s.keyMap[key] = it.ID
	}
	s.dirty = true
	return nil
}

// Search finds the k nearest live vectors.
func (s *HNSWStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, min(k+orphans, s.graph.Len()))

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{ID: id, Distance: d, Score: distanceToScore(d, s.config.Metric)})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete unmaps IDs; their nodes stay in the graph as orphans.
func (s *HNSWStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			s.dirty = true
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Finalize writes the graph and ID map when anything changed.
func (s *HNSWStore) Finalize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.config.Path == "" || !s.dirty {
		return nil
	}
	if err := s.save(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *HNSWStore) save() error {
	path := s.config.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err := writeAtomic(path, func(f *os.File) error {
		return s.graph.Export(f)
	})
	if err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	err = writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
	if err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWStore) load() error {
	path := s.config.Path

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	var meta hnswMetadata
	err = gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: meta.Config.Dimensions}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()
	// Import needs an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	slog.Debug("vector_store_loaded",
		slog.String("namespace", s.config.Namespace),
		slog.Int("vectors", len(s.idMap)))
	return nil
}

// Close releases the graph. Unsaved changes are dropped; call Finalize first.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorStore = (*HNSWStore)(nil)

// writeAtomic writes through a temp file renamed over path.
func writeAtomic(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance [0,2] or L2 distance [0,inf) to [0,1].
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
