package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QdrantConfig points a QdrantStore at a server.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a vector store backed by a Qdrant collection over its REST
// API. Point IDs must be UUIDs, so each string ID is mapped through a
// name-based UUID and the original is kept in the payload.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dim        int
	client     *http.Client

	mu     sync.Mutex
	ready  bool
	closed bool
}

var _ VectorStore = (*QdrantStore)(nil)

// NewQdrantStore returns a store for qc.Collection. The collection is
// created lazily on first use.
func NewQdrantStore(cfg VectorStoreConfig, qc QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimensions)
	}
	if qc.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if qc.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	timeout := qc.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:        strings.TrimRight(qc.URL, "/"),
		apiKey:     qc.APIKey,
		collection: qc.Collection,
		dim:        cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// pointID maps a string ID onto a stable UUID.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.ready {
		return nil
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case err == nil:
		if got := info.Result.Config.Params.Vectors.Size; got != 0 && got != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: got}
		}
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{"size": s.dim, "distance": "Cosine"},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
	default:
		return err
	}
	s.ready = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if len(it.Vector) != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: len(it.Vector)}
		}
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]map[string]any, len(items))
	for i, it := range items {
		points[i] = map[string]any{
			"id":     pointID(it.ID),
			"vector": it.Vector,
			"payload": map[string]any{
				"key":     it.ID,
				"content": it.Content,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != s.dim {
		return nil, ErrDimensionMismatch{Expected: s.dim, Got: len(query)}
	}
	if k <= 0 {
		return []*VectorResult{}, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]*VectorResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		key, _ := r.Payload["key"].(string)
		if key == "" {
			continue
		}
		results = append(results, &VectorResult{
			ID:       key,
			Distance: 1 - r.Score,
			Score:    distanceToScore(1-r.Score, "cos"),
		})
	}
	return results, nil
}

func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"points": points}, nil)
	return err
}

// Count asks the server for an exact point count. Errors count as zero.
func (s *QdrantStore) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.ensureCollection(ctx); err != nil {
		return 0
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0
	}
	return resp.Result.Count
}

// Finalize is a no-op: upserts already wait for the server to apply them.
func (s *QdrantStore) Finalize(context.Context) error { return nil }

func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends body as JSON and decodes a 2xx response into out. The HTTP
// status is returned even on error.
func (s *QdrantStore) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	return resp.StatusCode, nil
}
