package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "qwen3:4b"
)

// OllamaConfig configures the Ollama completer.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaCompleter calls Ollama's /api/generate endpoint.
type OllamaCompleter struct {
	client *http.Client
	cfg    OllamaConfig
}

var _ Completer = (*OllamaCompleter)(nil)

// NewOllamaCompleter creates a completer. No request is made until Complete.
func NewOllamaCompleter(cfg OllamaConfig) *OllamaCompleter {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaCompleter{client: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}
}

// Complete sends a non-streaming generate request.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt, retrieved string) (string, error) {
	text, err := amerrors.RetryWithResult(ctx, amerrors.DefaultRetryConfig(), func() (string, error) {
		return o.generate(ctx, generateRequest{
			Model:  o.cfg.Model,
			System: SystemPrompt(retrieved),
			Prompt: prompt,
		})
	})
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeCompletionFailed, "ollama completion failed", err)
	}
	return text, nil
}

func (o *OllamaCompleter) generate(ctx context.Context, body generateRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Host+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", amerrors.FromHTTPStatus("ollama", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", amerrors.FromHTTPStatus("ollama", resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

// ModelName returns the configured model.
func (o *OllamaCompleter) ModelName() string { return o.cfg.Model }
