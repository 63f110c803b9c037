// Package postgres implements avicenna.VectorIndex using PostgreSQL with
// pgvector for native cosine similarity search.
//
// The Index accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool. All points live in a
// single table keyed by (collection, id); the HNSW index covers the
// embedding column and the tenant filter rides on a btree.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	avicenna "github.com/avicenna-ai/avicenna"
)

// Index implements avicenna.VectorIndex backed by PostgreSQL with pgvector.
type Index struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds index configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// Option configures a PostgreSQL Index.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Default: pgvector's 64.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

var _ avicenna.VectorIndex = (*Index)(nil)

// New creates an Index using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Index {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Index{pool: pool, cfg: cfg}
}

func (ix *Index) vectorType() string {
	if ix.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", ix.cfg.embeddingDimension)
	}
	return "vector"
}

func (ix *Index) hnswWithClause() string {
	var parts []string
	if ix.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", ix.cfg.hnswM))
	}
	if ix.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", ix.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the points table, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (ix *Index) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS vector_collections (
			name TEXT PRIMARY KEY,
			dimension INT NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_points (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			embedding %s,
			PRIMARY KEY (collection, id)
		)`, ix.vectorType()),
		`CREATE INDEX IF NOT EXISTS vector_points_tenant_idx ON vector_points(collection, tenant_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS vector_points_embedding_idx ON vector_points USING hnsw (embedding vector_cosine_ops)%s`, ix.hnswWithClause()),
	}
	for _, stmt := range stmts {
		if _, err := ix.pool.Exec(ctx, stmt); err != nil {
			return depErr("init schema: %w", err)
		}
	}
	return nil
}

// EnsureCollection registers the collection and its dimension. Re-ensuring
// with a different dimension is an input error.
func (ix *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return &avicenna.ErrInput{Message: fmt.Sprintf("invalid collection dimension %d", dimension)}
	}

	var existing int
	err := ix.pool.QueryRow(ctx,
		`SELECT dimension FROM vector_collections WHERE name = $1`, name).Scan(&existing)
	switch {
	case err == pgx.ErrNoRows:
		if _, err := ix.pool.Exec(ctx,
			`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2)
			 ON CONFLICT (name) DO NOTHING`, name, dimension); err != nil {
			return depErr("create collection: %w", err)
		}
		return nil
	case err != nil:
		return depErr("lookup collection: %w", err)
	case existing != dimension:
		return &avicenna.ErrInput{Message: fmt.Sprintf(
			"collection %s has dimension %d, cannot ensure %d", name, existing, dimension)}
	default:
		return nil
	}
}

// Upsert writes points in a single transaction, replacing rows that share a
// point ID. An empty batch is a no-op.
func (ix *Index) Upsert(ctx context.Context, collection string, points []avicenna.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return depErr("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range points {
		if _, err := tx.Exec(ctx,
			`INSERT INTO vector_points (collection, id, tenant_id, title, source, text, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
			 ON CONFLICT (collection, id) DO UPDATE SET
				tenant_id = EXCLUDED.tenant_id,
				title     = EXCLUDED.title,
				source    = EXCLUDED.source,
				text      = EXCLUDED.text,
				embedding = EXCLUDED.embedding`,
			collection, p.ID, p.Payload.TenantID, p.Payload.Title, p.Payload.Source,
			p.Payload.Text, serializeEmbedding(p.Vector)); err != nil {
			return depErr("upsert point %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return depErr("commit upsert: %w", err)
	}
	return nil
}

// Search performs cosine similarity search restricted to the tenant's
// points, using pgvector's cosine distance operator with the HNSW index.
func (ix *Index) Search(ctx context.Context, collection string, vector []float32, tenantID string, limit int) ([]avicenna.SearchResult, error) {
	if limit <= 0 {
		limit = avicenna.DefaultTopK
	}
	embStr := serializeEmbedding(vector)
	rows, err := ix.pool.Query(ctx,
		`SELECT tenant_id, title, source, text,
		        1 - (embedding <=> $1::vector) AS score
		 FROM vector_points
		 WHERE collection = $2 AND tenant_id = $3 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $4`,
		embStr, collection, tenantID, limit)
	if err != nil {
		return nil, depErr("search points: %w", err)
	}
	defer rows.Close()

	var results []avicenna.SearchResult
	var payloads []avicenna.Payload
	for rows.Next() {
		var p avicenna.Payload
		var score float32
		if err := rows.Scan(&p.TenantID, &p.Title, &p.Source, &p.Text, &score); err != nil {
			return nil, depErr("scan point: %w", err)
		}
		payloads = append(payloads, p)
		results = append(results, avicenna.SearchResult{
			Text:   p.Text,
			Title:  p.Title,
			Source: p.Source,
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, depErr("iterate points: %w", err)
	}
	if err := avicenna.VerifyTenant(tenantID, payloads...); err != nil {
		return nil, err
	}
	return results, nil
}

// serializeEmbedding converts []float32 to pgvector's text format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// depErr classifies a storage failure as a dependency error so callers can
// tell an unavailable index apart from empty results.
func depErr(format string, args ...any) error {
	return &avicenna.ErrDependency{Service: "postgres", Err: fmt.Errorf(format, args...)}
}
