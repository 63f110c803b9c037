// Package resolve creates providers from provider-agnostic configuration,
// so callers (mainly cmd wiring) never import concrete provider packages.
package resolve

import (
	"fmt"

	avicenna "github.com/avicenna-ai/avicenna"
	"github.com/avicenna-ai/avicenna/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "vllm", "openai", "ollama", "groq", "together", "mistral"
	APIKey   string
	Model    string
	BaseURL  string // required for vllm/ollama; auto-filled for known hosted providers

	// nil = use provider default.
	Temperature *float64
	MaxTokens   *int
}

// EmbeddingConfig holds provider-agnostic configuration for creating an
// EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// Provider creates an avicenna.Provider from a Config.
func Provider(cfg Config) (avicenna.Provider, error) {
	switch cfg.Provider {
	case "vllm", "openai", "ollama", "groq", "together", "mistral":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		if baseURL == "" {
			return nil, fmt.Errorf("resolve: provider %q requires a base URL", cfg.Provider)
		}
		opts := []openaicompat.Option{openaicompat.WithName(cfg.Provider)}
		if cfg.Temperature != nil {
			opts = append(opts, openaicompat.WithTemperature(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			opts = append(opts, openaicompat.WithMaxTokens(*cfg.MaxTokens))
		}
		return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, opts...), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

// EmbeddingProvider creates an avicenna.EmbeddingProvider from an
// EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (avicenna.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "vllm", "openai", "ollama", "tei":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		if baseURL == "" {
			return nil, fmt.Errorf("resolve: embedding provider %q requires a base URL", cfg.Provider)
		}
		if cfg.Dimensions <= 0 {
			return nil, fmt.Errorf("resolve: embedding provider %q requires dimensions", cfg.Provider)
		}
		return openaicompat.NewEmbedding(cfg.APIKey, cfg.Model, baseURL, cfg.Dimensions,
			openaicompat.WithEmbeddingName(cfg.Provider)), nil
	default:
		return nil, fmt.Errorf("resolve: unknown embedding provider %q", cfg.Provider)
	}
}

// defaultBaseURL returns the hosted endpoint for known providers.
// Self-hosted providers (vllm, ollama, tei) have no default; the deployment
// supplies the URL.
func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	default:
		return ""
	}
}
