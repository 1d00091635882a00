package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultOpenAIModel is the default chat model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond caps outgoing calls; 0 disables limiting.
	RequestsPerSecond float64
	Temperature       float32
	Retry             amerrors.RetryConfig
}

// OpenAICompleter calls the chat completions API. Calls are rate limited,
// retried on transient failures and short-circuited while the provider is
// failing.
type OpenAICompleter struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
	breaker *amerrors.CircuitBreaker
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter creates a completer.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, amerrors.New(amerrors.ErrCodeMissingProvider, "openai completer requires OPENAI_API_KEY", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		limiter: limiter,
		breaker: amerrors.NewCircuitBreaker("openai completion"),
	}, nil
}

// Complete sends the context as the system message and prompt as the user
// message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt, retrieved string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if sys := SystemPrompt(retrieved); sys != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
	}

	start := time.Now()
	text, err := amerrors.Execute(c.breaker, func() (string, error) {
		return amerrors.RetryWithResult(ctx, c.cfg.Retry, func() (string, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
			resp, err := c.client.CreateChatCompletion(callCtx, req)
			if err != nil {
				return "", classify(err)
			}
			if len(resp.Choices) == 0 {
				return "", amerrors.New(amerrors.ErrCodeCompletionFailed, "openai returned no choices", nil)
			}
			return resp.Choices[0].Message.Content, nil
		})
	})
	if err != nil {
		if errors.Is(err, amerrors.ErrCircuitOpen) {
			return "", err
		}
		return "", amerrors.New(amerrors.ErrCodeCompletionFailed, "openai completion failed", err)
	}
	slog.Debug("completion_done",
		slog.String("model", c.cfg.Model),
		slog.Duration("duration", time.Since(start)))
	return strings.TrimSpace(text), nil
}

// ModelName returns the configured chat model.
func (c *OpenAICompleter) ModelName() string { return c.cfg.Model }

func classify(err error) error {
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
