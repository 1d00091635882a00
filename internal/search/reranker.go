package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/config"
)

// RerankResult is a single reranked document.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score (0.0 to 1.0).
	Score    float64
	Document string
}

// Reranker reorders retrieved chunks by relevance to the query. Hybrid
// queries call it after local and global retrieval are merged.
type Reranker interface {
	// Rerank returns results sorted by score descending, at most topK
	// (0 = all).
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker service is available.
	Available(ctx context.Context) bool

	Close() error
}

// NoOpReranker keeps the original order. Used when reranking is disabled.
type NoOpReranker struct{}

// Rerank returns documents in original order with decreasing scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available always returns true.
func (n *NoOpReranker) Available(context.Context) bool { return true }

// Close is a no-op.
func (n *NoOpReranker) Close() error { return nil }

var _ Reranker = (*NoOpReranker)(nil)

// NewReranker builds the configured reranker; provider none yields a
// NoOpReranker.
func NewReranker(cfg config.RerankConfig) (Reranker, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return &NoOpReranker{}, nil
	case "cohere":
		return NewCohereReranker(CohereConfig{
			Host:   cfg.Host,
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown rerank provider %q (valid: none, cohere)", cfg.Provider)
	}
}

// IsNoOp reports whether r leaves order unchanged.
func IsNoOp(r Reranker) bool {
	_, ok := r.(*NoOpReranker)
	return r == nil || ok
}
