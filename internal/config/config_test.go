package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.toml"))

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Index.Backend != "qdrant" || cfg.Index.Collection != "medical_knowledge" {
		t.Errorf("index defaults = %+v", cfg.Index)
	}
	if cfg.Chunking.MaxChars != 512 || cfg.Retrieval.TopK != 5 {
		t.Errorf("pipeline defaults = %+v / %+v", cfg.Chunking, cfg.Retrieval)
	}
	if cfg.Embedding.Workers != 2 {
		t.Errorf("embedding workers = %d", cfg.Embedding.Workers)
	}
	if cfg.Retrieval.AllowDegraded {
		t.Error("degraded retrieval must be opt-in")
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avicenna.toml")
	data := `
[server]
addr = ":9090"

[index]
backend = "sqlite"
sqlite_path = "/data/index.db"

[retrieval]
top_k = 3
allow_degraded = true

[chunking]
max_chars = 256
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Index.Backend != "sqlite" || cfg.Index.SQLitePath != "/data/index.db" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Retrieval.TopK != 3 || !cfg.Retrieval.AllowDegraded {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Chunking.MaxChars != 256 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	// Untouched sections keep defaults.
	if cfg.LLM.Provider != "vllm" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestEnvOverridesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avicenna.toml")
	if err := os.WriteFile(path, []byte("[llm]\napi_key = \"from-file\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AVICENNA_LLM_API_KEY", "from-env")
	t.Setenv("AVICENNA_TENANT_DEFAULT", "clinic-a")
	t.Setenv("AVICENNA_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("AVICENNA_OBSERVER_ENABLED", "1")

	cfg := Load(path)
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key = %q, env must win", cfg.LLM.APIKey)
	}
	if cfg.Tenant.Default != "clinic-a" {
		t.Errorf("tenant default = %q", cfg.Tenant.Default)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
	if !cfg.Observer.Enabled {
		t.Error("observer should be enabled via env")
	}
}

func TestEmbeddingAPIKeyFallsBackToLLMKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avicenna.toml")
	if err := os.WriteFile(path, []byte("[llm]\napi_key = \"shared\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Embedding.APIKey != "shared" {
		t.Errorf("embedding key = %q, want LLM key fallback", cfg.Embedding.APIKey)
	}
}
