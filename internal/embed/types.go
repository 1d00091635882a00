// Package embed turns text into vectors for the retrieval engine.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize caps texts per provider request.
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// StaticDimensions is the size of the offline hash embeddings.
	StaticDimensions = 768
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector returns v scaled to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// batches splits n items into [start, end) windows of at most size.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
