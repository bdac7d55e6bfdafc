package providers

import (
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New creates a Provider from the given configuration. The empty provider
// name selects openai, matching the service's OpenAI-compatible default.
func New(cfg Config) (Provider, error) {
	httpClient := newHTTPClient(cfg)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for the openai provider")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient), nil

	case ProviderOllama:
		// Ollama runs locally and needs no credential
		return NewOllamaClient(cfg.Model, cfg.BaseURL, httpClient), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
