package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the initial health check.
	OllamaConnectTimeout = 5 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string
	// Dimensions overrides auto-detection when non-zero.
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	// SkipHealthCheck skips the model probe at construction (tests).
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns defaults for a local Ollama.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings using Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an embedder and, unless skipped, probes the
// model once to detect its dimensions.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, MaxBatchSize)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	// no client-level timeout; each attempt gets its own context deadline
	e := &OllamaEmbedder{client: &http.Client{}, config: cfg, dims: cfg.Dimensions}

	if !cfg.SkipHealthCheck && e.dims == 0 {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		vecs, err := e.doEmbed(checkCtx, []string{"dimension detection"})
		if err != nil {
			return nil, fmt.Errorf("failed to reach Ollama model %s at %s: %w", cfg.Model, cfg.Host, err)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return nil, fmt.Errorf("ollama returned an empty embedding for %s", cfg.Model)
		}
		e.dims = len(vecs[0])
	}
	if e.dims == 0 {
		e.dims = StaticDimensions
	}
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider batches. Blank texts map to the zero
// vector without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

	for _, w := range batches(len(pending), e.config.BatchSize) {
		vecs, err := e.doEmbedWithRetry(ctx, pending[w[0]:w[1]])
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "ollama embedding failed", err)
		}
		if len(vecs) != w[1]-w[0] {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("ollama returned %d embeddings for %d texts", len(vecs), w[1]-w[0]), nil)
		}
		for j, v := range vecs {
			results[idx[w[0]+j]] = v
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := amerrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries - 1
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.ShouldRetry = func(error) bool { return ctx.Err() == nil }

	attempt := 0
	return amerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		vecs, err := e.doEmbed(attemptCtx, texts)
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts_count", len(texts)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }

func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available checks that the Ollama server answers /api/tags.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
