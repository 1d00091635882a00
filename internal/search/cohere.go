package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultCohereHost is the Cohere API base URL.
const DefaultCohereHost = "https://api.cohere.com"

// CohereConfig configures the Cohere-compatible reranker.
type CohereConfig struct {
	// Host is a base URL or a full URL ending in /rerank.
	Host    string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type cohereRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// CohereReranker calls a Cohere-style /rerank endpoint.
type CohereReranker struct {
	client *http.Client
	cfg    CohereConfig
	url    string
}

var _ Reranker = (*CohereReranker)(nil)

// NewCohereReranker creates a reranker. The model is required.
func NewCohereReranker(cfg CohereConfig) (*CohereReranker, error) {
	if cfg.Model == "" {
		return nil, amerrors.InvalidConfig("cohere reranker requires a model")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultCohereHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	url := strings.TrimRight(cfg.Host, "/")
	if !strings.HasSuffix(url, "/rerank") {
		url += "/v1/rerank"
	}
	return &CohereReranker{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		url:    url,
	}, nil
}

// Rerank sends all documents in one request. Transient failures are
// retried.
func (c *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}
	body := cohereRequest{Model: c.cfg.Model, Query: query, Documents: documents, TopN: topK}
	resp, err := amerrors.RetryWithResult(ctx, amerrors.DefaultRetryConfig(), func() (*cohereResponse, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("rerank failed: %w", err)
	}

	results := make([]RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		results = append(results, RerankResult{Index: r.Index, Score: r.RelevanceScore, Document: documents[r.Index]})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (c *CohereReranker) post(ctx context.Context, body cohereRequest) (*cohereResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, amerrors.FromHTTPStatus("rerank", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, amerrors.FromHTTPStatus("rerank", resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	var out cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return &out, nil
}

// Available reports whether a key is configured; no request is made.
func (c *CohereReranker) Available(context.Context) bool { return c.cfg.APIKey != "" }

// Close releases idle connections.
func (c *CohereReranker) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
