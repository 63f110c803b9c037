// Command avicenna runs the clinical decision-support API server.
//
// Configuration comes from avicenna.toml (path via AVICENNA_CONFIG) with
// AVICENNA_* environment overrides. The vector index backend (qdrant,
// postgres, or sqlite) and interaction store backend (postgres or sqlite)
// are selected in config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	avicenna "github.com/avicenna-ai/avicenna"
	indexpostgres "github.com/avicenna-ai/avicenna/index/postgres"
	"github.com/avicenna-ai/avicenna/index/qdrant"
	indexsqlite "github.com/avicenna-ai/avicenna/index/sqlite"
	"github.com/avicenna-ai/avicenna/ingest"
	"github.com/avicenna-ai/avicenna/internal/app"
	"github.com/avicenna-ai/avicenna/internal/config"
	"github.com/avicenna-ai/avicenna/observer"
	"github.com/avicenna-ai/avicenna/provider/resolve"
	storepostgres "github.com/avicenna-ai/avicenna/store/postgres"
	storesqlite "github.com/avicenna-ai/avicenna/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("avicenna: fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Load(os.Getenv("AVICENNA_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability is opt-in; everything still works without a collector.
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return fmt.Errorf("init observer: %w", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutCtx); err != nil {
				logger.Warn("avicenna: observer shutdown", "error", err)
			}
		}()
	}

	// Providers
	llm, err := resolve.Provider(resolve.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	embedding, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	llm = avicenna.WithRetry(llm,
		avicenna.RetryMaxAttempts(cfg.LLM.RetryMaxAttempts),
		avicenna.RetryLogger(logger))
	if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
		llm = avicenna.WithRateLimit(llm, avicenna.RPM(cfg.LLM.RPM), avicenna.TPM(cfg.LLM.TPM))
	}
	if inst != nil {
		llm = observer.WrapProvider(llm, cfg.LLM.Model, inst)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
	}
	pooled := avicenna.NewPoolEmbedder(embedding,
		avicenna.WithWorkers(cfg.Embedding.Workers),
		avicenna.WithWarmup(func(ctx context.Context) error {
			_, err := embedding.Embed(ctx, []string{"warmup"})
			return err
		}))

	// Vector index
	index, closeIndex, err := buildIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	defer closeIndex()
	if inst != nil {
		index = observer.WrapIndex(index, inst)
	}

	// Interaction store
	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create interaction store: %w", err)
	}
	defer closeStore()

	service := app.New(app.Deps{
		Provider: llm,
		Retriever: avicenna.NewRetriever(pooled, index, cfg.Index.Collection,
			avicenna.WithTopK(cfg.Retrieval.TopK)),
		Ingestor: ingest.NewIngestor(pooled, index, cfg.Index.Collection,
			ingest.WithChunker(ingest.NewParagraphChunker(ingest.WithMaxChars(cfg.Chunking.MaxChars))),
			ingest.WithLogger(logger)),
		Store:         store,
		Reconstructor: avicenna.NewReconstructor(avicenna.WithReconstructorLogger(logger)),
		Logger:        logger,
		Model:         cfg.LLM.Model,
		DefaultTenant: cfg.Tenant.Default,
		AllowDegraded: cfg.Retrieval.AllowDegraded,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      service.Handler(),
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("avicenna: listening", "addr", cfg.Server.Addr,
			"index", cfg.Index.Backend, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("avicenna: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("avicenna: stopped")
	return nil
}

// buildIndex creates the configured vector index backend and returns it with
// a cleanup function.
func buildIndex(ctx context.Context, cfg config.Config, logger *slog.Logger) (avicenna.VectorIndex, func(), error) {
	switch cfg.Index.Backend {
	case "qdrant":
		ix := qdrant.New(cfg.Index.QdrantURL,
			qdrant.WithAPIKey(cfg.Index.QdrantAPIKey),
			qdrant.WithLogger(logger))
		return ix, func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Index.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		ix := indexpostgres.New(pool,
			indexpostgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := ix.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return ix, pool.Close, nil

	case "sqlite":
		ix := indexsqlite.New(cfg.Index.SQLitePath, indexsqlite.WithLogger(logger))
		if err := ix.Init(ctx); err != nil {
			_ = ix.Close()
			return nil, nil, err
		}
		return ix, func() { _ = ix.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// buildStore creates the configured interaction store backend and returns it
// with a cleanup function.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (avicenna.InteractionStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		st := storepostgres.New(pool)
		if err := st.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil

	case "sqlite":
		st := storesqlite.New(cfg.Store.SQLitePath, storesqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
