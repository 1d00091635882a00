package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/config"
)

// Provider names.
const (
	ProviderAuto       = "auto"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderExtractive = "extractive"
)

// ResolveProvider turns auto into openai when a key is present, otherwise
// extractive.
func ResolveProvider(cfg config.LLMConfig) string {
	p := strings.ToLower(cfg.Provider)
	if p == "" || p == ProviderAuto {
		if cfg.APIKey != "" {
			return ProviderOpenAI
		}
		return ProviderExtractive
	}
	return p
}

// NewCompleter builds the configured completer.
func NewCompleter(cfg config.LLMConfig, timeout time.Duration) (Completer, error) {
	var (
		c   Completer
		err error
	)
	provider := ResolveProvider(cfg)
	switch provider {
	case ProviderOpenAI:
		c, err = NewOpenAICompleter(OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Temperature:       cfg.Temperature,
		})
	case ProviderOllama:
		model := cfg.Model
		if model == config.NewConfig().LLM.Model {
			model = ""
		}
		c = NewOllamaCompleter(OllamaConfig{Host: cfg.BaseURL, Model: model, Timeout: timeout})
	case ProviderExtractive:
		c = NewExtractiveCompleter(0)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (valid: auto, openai, ollama, extractive)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("completer_selected", slog.String("provider", provider), slog.String("model", c.ModelName()))
	return c, nil
}

// IsExtractive reports whether c is the offline extractive completer.
func IsExtractive(c Completer) bool {
	_, ok := c.(*ExtractiveCompleter)
	return ok
}
