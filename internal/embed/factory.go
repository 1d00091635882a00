package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/config"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	ProviderStatic ProviderType = "static"
	// ProviderAuto picks openai when an API key is configured, otherwise static.
	ProviderAuto ProviderType = "auto"
)

// ResolveProvider turns auto into a concrete provider.
func ResolveProvider(cfg config.EmbeddingsConfig) ProviderType {
	p := ProviderType(strings.ToLower(cfg.Provider))
	if p == "" || p == ProviderAuto {
		if cfg.APIKey != "" {
			return ProviderOpenAI
		}
		return ProviderStatic
	}
	return p
}

// NewEmbedder builds the configured embedder wrapped in an LRU cache. An
// explicitly selected provider that cannot start is an error; there is no
// silent fallback.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	provider := ResolveProvider(cfg)
	switch provider {
	case ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderStatic:
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: auto, openai, ollama, static)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_selected",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
