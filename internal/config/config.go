// Package config loads service configuration from avicenna.toml with
// environment overrides. Precedence: defaults -> TOML file -> env vars.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Tenant    TenantConfig    `toml:"tenant"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Index     IndexConfig     `toml:"index"`
	Store     StoreConfig     `toml:"store"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TenantConfig struct {
	// Default tenant applied when a request carries no X-Tenant-ID header.
	// Empty means the header is mandatory.
	Default string `toml:"default"`
}

type LLMConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   *int     `toml:"max_tokens"`

	// RetryMaxAttempts bounds retries on 429/503 from the LLM endpoint.
	RetryMaxAttempts int `toml:"retry_max_attempts"`
	// RPM and TPM enable client-side rate limiting when positive. Useful
	// against hosted providers with per-key quotas; leave zero for
	// self-hosted vLLM.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	Workers    int    `toml:"workers"`
}

type IndexConfig struct {
	// Backend selects the vector index: "qdrant", "postgres", or "sqlite".
	Backend    string `toml:"backend"`
	Collection string `toml:"collection"`

	QdrantURL    string `toml:"qdrant_url"`
	QdrantAPIKey string `toml:"qdrant_api_key"`
	PostgresDSN  string `toml:"postgres_dsn"`
	SQLitePath   string `toml:"sqlite_path"`
}

type StoreConfig struct {
	// Backend selects the interaction store: "postgres" or "sqlite".
	Backend     string `toml:"backend"`
	PostgresDSN string `toml:"postgres_dsn"`
	SQLitePath  string `toml:"sqlite_path"`
}

type ChunkingConfig struct {
	MaxChars int `toml:"max_chars"`
}

type RetrievalConfig struct {
	TopK int `toml:"top_k"`
	// AllowDegraded lets case analysis proceed without retrieved context
	// when the embedding service or index is down.
	AllowDegraded bool `toml:"allow_degraded"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080"},
		LLM:       LLMConfig{Provider: "vllm", Model: "meta-llama/Llama-3.1-8B-Instruct", BaseURL: "http://localhost:8000/v1", RetryMaxAttempts: 3},
		Embedding: EmbeddingConfig{Provider: "vllm", Model: "BAAI/bge-small-en-v1.5", BaseURL: "http://localhost:8001/v1", Dimensions: 384, Workers: 2},
		Index:     IndexConfig{Backend: "qdrant", Collection: "medical_knowledge", QdrantURL: "http://localhost:6333", SQLitePath: "avicenna-index.db"},
		Store:     StoreConfig{Backend: "sqlite", SQLitePath: "avicenna.db"},
		Chunking:  ChunkingConfig{MaxChars: 512},
		Retrieval: RetrievalConfig{TopK: 5},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "avicenna.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("AVICENNA_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AVICENNA_TENANT_DEFAULT"); v != "" {
		cfg.Tenant.Default = v
	}
	if v := os.Getenv("AVICENNA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AVICENNA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AVICENNA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AVICENNA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("AVICENNA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("AVICENNA_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("AVICENNA_QDRANT_URL"); v != "" {
		cfg.Index.QdrantURL = v
	}
	if v := os.Getenv("AVICENNA_QDRANT_API_KEY"); v != "" {
		cfg.Index.QdrantAPIKey = v
	}
	if v := os.Getenv("AVICENNA_INDEX_POSTGRES_DSN"); v != "" {
		cfg.Index.PostgresDSN = v
	}
	if v := os.Getenv("AVICENNA_STORE_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("AVICENNA_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.Workers <= 0 {
		cfg.Embedding.Workers = 2
	}
	if cfg.Chunking.MaxChars <= 0 {
		cfg.Chunking.MaxChars = 512
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.LLM.RetryMaxAttempts <= 0 {
		cfg.LLM.RetryMaxAttempts = 3
	}

	return cfg
}
