package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given: a static embedder
	e := NewStaticEmbedder()
	ctx := context.Background()

	// When: the same text is embedded twice
	a, err := e.Embed(ctx, "Alpha loves Beta.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Alpha loves Beta.")
	require.NoError(t, err)

	// Then: the vectors match and are unit length
	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
	d, err := store.CosineDistance(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-5)
}

func TestStaticEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "Who does Alpha love?")
	near, _ := e.Embed(ctx, "Alpha loves Beta.")
	far, _ := e.Embed(ctx, "Gamma manufactures turbines in Oslo.")

	dNear, err := store.CosineDistance(q, near)
	require.NoError(t, err)
	dFar, err := store.CosineDistance(q, far)
	require.NoError(t, err)
	assert.Less(t, dNear, dFar)
}

func TestStaticEmbedder_BlankAndClosed(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), v)

	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

// countingEmbedder counts texts that reach the provider.
type countingEmbedder struct {
	StaticEmbedder
	texts atomic.Int64
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_OnlyMissesReachProvider(t *testing.T) {
	// Given: a cache in front of a counting embedder
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "one")
	require.NoError(t, err)

	// When: a batch mixes a cached and two new texts
	vecs, err := c.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)

	// Then: only the two misses were embedded
	assert.Len(t, vecs, 3)
	assert.Equal(t, int64(3), inner.texts.Load())
	assert.Equal(t, 3, c.Len())

	_, err = c.Embed(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, int64(3), inner.texts.Load())
}

func TestOllamaEmbedder_BatchesAndSkipsBlank(t *testing.T) {
	// Given: a fake Ollama returning 3-dim vectors
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		requests.Add(1)
		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := 1
		if list, ok := req.Input.([]any); ok {
			n = len(list)
		}
		embs := make([][]float64, n)
		for i := range embs {
			embs[i] = []float64{3, 4, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embs})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())
	requests.Store(0)

	// When: embedding three texts and a blank one
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "b", "c"})
	require.NoError(t, err)

	// Then: two requests were made and vectors are normalized
	assert.Equal(t, int64(2), requests.Load())
	require.Len(t, vecs, 4)
	assert.Equal(t, []float32{0, 0, 0}, vecs[1])
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[3][1], 1e-6)
}

func TestOllamaEmbedder_ServerErrorIsEmbeddingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, MaxRetries: 1})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
}

func TestOpenAIEmbedder_UsesIndexOrder(t *testing.T) {
	// Given: an OpenAI-compatible server that answers out of order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"model": "text-embedding-3-small",
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	// When: two texts are embedded
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})

	// Then: results follow the response indexes
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Equal(t, amerrors.ErrCodeMissingProvider, amerrors.GetCode(err))
}

func TestNewEmbedder_Selection(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.EmbeddingsConfig
		want     ProviderType
		wantDims int
	}{
		{"auto without key", config.EmbeddingsConfig{Provider: "auto"}, ProviderStatic, StaticDimensions},
		{"auto with key", config.EmbeddingsConfig{Provider: "auto", APIKey: "sk"}, ProviderOpenAI, 1536},
		{"explicit static", config.EmbeddingsConfig{Provider: "static", APIKey: "sk"}, ProviderStatic, StaticDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveProvider(tt.cfg))
			e, err := NewEmbedder(context.Background(), tt.cfg)
			require.NoError(t, err)
			defer func() { _ = e.Close() }()
			assert.Equal(t, tt.wantDims, e.Dimensions())
			_, cached := e.(*CachedEmbedder)
			assert.True(t, cached)
		})
	}

	_, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "word2vec"})
	assert.Error(t, err)
}
