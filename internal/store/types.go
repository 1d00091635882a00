// Package store holds the persistence backends used by the engine: vector
// stores, keyword indexes, knowledge-graph stores and the chunk/document
// key-value store.
package store

import (
	"context"
	"fmt"
	"time"
)

// Vector namespaces kept by the engine.
const (
	NamespaceChunks        = "chunks"
	NamespaceEntities      = "entities"
	NamespaceRelationships = "relationships"
)

// VectorItem is one embedding to upsert.
type VectorItem struct {
	ID     string
	Vector []float32
	// Content is an optional payload kept next to the vector by backends
	// that support it.
	Content string
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID       string
	Distance float32
	// Score is a similarity in [0, 1]; higher is closer.
	Score float32
}

// VectorStoreConfig configures a vector backend instance.
type VectorStoreConfig struct {
	Dimensions int
	// Namespace names the collection (chunks, entities, relationships).
	Namespace string
	// Path is where file-backed stores persist; empty keeps them in memory.
	Path string
	// Metric is "cos" (default) or "l2".
	Metric string
	// HNSW parameters.
	M        int
	EfSearch int
}

// VectorStore stores embeddings by string ID.
type VectorStore interface {
	// Upsert inserts or replaces vectors.
	Upsert(ctx context.Context, items []VectorItem) error
	// Search returns up to k nearest vectors, closest first.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	// Finalize makes all upserts durable.
	Finalize(ctx context.Context) error
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Document is a unit of text for the keyword index.
type Document struct {
	ID      string
	Content string
}

// KeywordResult is a single BM25 hit.
type KeywordResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// KeywordConfig configures keyword indexes.
type KeywordConfig struct {
	StopWords []string
}

// DefaultKeywordConfig returns English stop words.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{StopWords: DefaultStopWords}
}

// KeywordIndex is a BM25 index over entity and relation descriptions.
type KeywordIndex interface {
	Index(ctx context.Context, docs []*Document) error
	// Search matches any query term and ranks by BM25, best first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Finalize(ctx context.Context) error
	Close() error
}

// Entity is a knowledge-graph node.
type Entity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	SourceIDs   []string `json:"source_ids"`
}

// Relation is an undirected knowledge-graph edge. Source <= Target after
// normalization.
type Relation struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Description string   `json:"description"`
	Keywords    string   `json:"keywords"`
	Weight      float64  `json:"weight"`
	SourceIDs   []string `json:"source_ids"`
}

// EdgeKey identifies an undirected edge.
type EdgeKey struct {
	Source string
	Target string
}

// NewEdgeKey returns the normalized key for the pair.
func NewEdgeKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{Source: a, Target: b}
}

// Key returns the relation's normalized edge key.
func (r *Relation) Key() EdgeKey { return NewEdgeKey(r.Source, r.Target) }

// GraphStore persists entities and relations. Upserts merge with existing
// records atomically: descriptions and source chunk IDs are unioned.
type GraphStore interface {
	UpsertEntities(ctx context.Context, entities []*Entity) error
	UpsertRelations(ctx context.Context, relations []*Relation) error
	// GetEntities returns the named entities in input order, skipping missing ones.
	GetEntities(ctx context.Context, names []string) ([]*Entity, error)
	// GetRelations returns the keyed relations in input order, skipping missing ones.
	GetRelations(ctx context.Context, keys []EdgeKey) ([]*Relation, error)
	// EntityRelations returns every edge touching name.
	EntityRelations(ctx context.Context, name string) ([]*Relation, error)
	Counts(ctx context.Context) (entities, relations int, err error)
	Finalize(ctx context.Context) error
	Close() error
}

// DocStatus tracks a document through the ingest pipeline.
type DocStatus string

const (
	DocStatusProcessing DocStatus = "processing"
	DocStatusProcessed  DocStatus = "processed"
	DocStatusFailed     DocStatus = "failed"
)

// DocRecord is the pipeline state of one ingested text.
type DocRecord struct {
	ID         string
	Summary    string
	Length     int
	ChunkCount int
	Status     DocStatus
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkRecord is stored chunk text.
type ChunkRecord struct {
	ID      string
	DocID   string
	Content string
	Tokens  int
	Order   int
}

// KVStore keeps chunk text and document pipeline state.
type KVStore interface {
	// GetDoc returns nil, nil when the document is unknown.
	GetDoc(ctx context.Context, id string) (*DocRecord, error)
	PutDoc(ctx context.Context, doc *DocRecord) error
	PutChunks(ctx context.Context, chunks []*ChunkRecord) error
	// GetChunks returns chunks in input order, skipping missing ones.
	GetChunks(ctx context.Context, ids []string) ([]*ChunkRecord, error)
	Counts(ctx context.Context) (docs, chunks int, err error)
	Finalize(ctx context.Context) error
	Close() error
}
