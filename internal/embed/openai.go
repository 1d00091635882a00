package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at an OpenAI-compatible endpoint; empty uses api.openai.com.
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder calls the OpenAI embeddings API through go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
	batch  int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder. Dimensions default from the model
// name when not configured.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, amerrors.New(amerrors.ErrCodeMissingProvider, "openai embedder requires OPENAI_API_KEY", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1536
		if strings.Contains(cfg.Model, "3-large") {
			dims = 3072
		}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dims:   dims,
		batch:  min(cfg.BatchSize, MaxBatchSize),
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in provider batches with retry on transient errors.
// Blank texts map to the zero vector.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
		pending = append(pending, text)
	}

	for _, w := range batches(len(pending), e.batch) {
		req := openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: pending[w[0]:w[1]],
		}
		if e.dims != 1536 && e.dims != 3072 {
			req.Dimensions = e.dims
		}
		resp, err := amerrors.RetryWithResult(ctx, amerrors.DefaultRetryConfig(), func() (openai.EmbeddingResponse, error) {
			r, err := e.client.CreateEmbeddings(ctx, req)
			return r, classifyOpenAIError(err)
		})
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "openai embedding failed", err)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= w[1]-w[0] {
				return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("openai returned out-of-range index %d", d.Index), nil)
			}
			v := make([]float32, len(d.Embedding))
			for j, x := range d.Embedding {
				v[j] = float32(x)
			}
			results[idx[w[0]+d.Index]] = normalizeVector(v)
		}
	}
	for i, r := range results {
		if r == nil {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("openai returned no embedding for text %d", i), nil)
		}
	}
	return results, nil
}

// classifyOpenAIError maps go-openai errors onto AmanErrors so transient
// failures are retried.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return amerrors.FromHTTPStatus("openai", status, err)
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Available reports true until Close; the key is only checked on first use.
func (e *OpenAIEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
