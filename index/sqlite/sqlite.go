// Package sqlite implements avicenna.VectorIndex backed by a local SQLite
// file. Embeddings are stored as JSON text and similarity search runs
// in-process with brute-force cosine over the tenant's points. Meant for
// single-node deployments and tests; larger corpora belong in qdrant or
// postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"
	_ "modernc.org/sqlite"
)

// Index implements avicenna.VectorIndex on a SQLite database.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ avicenna.VectorIndex = (*Index)(nil)

// Option configures a SQLite Index.
type Option func(*Index)

// WithLogger sets a structured logger for the index. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// New creates an Index using a local SQLite file at dbPath.
// It opens a pool with SetMaxOpenConns(1) so all goroutines serialize
// through one connection, avoiding SQLITE_BUSY from concurrent writers.
func New(dbPath string, opts ...Option) *Index {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	ix := &Index{db: db, logger: nopLogger}
	for _, o := range opts {
		o(ix)
	}
	ix.logger.Debug("sqlite: vector index opened", "path", dbPath)
	return ix
}

// Init creates the schema if it does not exist.
func (ix *Index) Init(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vector_collections (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS vector_points (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			tenant_id  TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			source     TEXT NOT NULL DEFAULT '',
			text       TEXT NOT NULL,
			embedding  TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_vector_points_tenant
			ON vector_points (collection, tenant_id);
	`)
	if err != nil {
		return depErr("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (ix *Index) Close() error { return ix.db.Close() }

// EnsureCollection registers the collection and its dimension. Re-ensuring
// with a different dimension is an input error: the stored embeddings would
// no longer be comparable.
func (ix *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return &avicenna.ErrInput{Message: fmt.Sprintf("invalid collection dimension %d", dimension)}
	}

	var existing int
	err := ix.db.QueryRowContext(ctx,
		`SELECT dimension FROM vector_collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := ix.db.ExecContext(ctx,
			`INSERT INTO vector_collections (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
			return depErr("create collection: %w", err)
		}
		ix.logger.Info("sqlite: collection created", "collection", name, "dimension", dimension)
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
	start := time.Now()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return depErr("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_points (collection, id, tenant_id, title, source, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			title     = excluded.title,
			source    = excluded.source,
			text      = excluded.text,
			embedding = excluded.embedding`)
	if err != nil {
		return depErr("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, collection, p.ID, p.Payload.TenantID,
			p.Payload.Title, p.Payload.Source, p.Payload.Text, serializeEmbedding(p.Vector)); err != nil {
			return depErr("upsert point %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return depErr("commit upsert: %w", err)
	}

	ix.logger.Debug("sqlite: points upserted",
		"collection", collection, "count", len(points), "duration", time.Since(start))
	return nil
}

// Search scans the tenant's points in the collection and ranks them by
// cosine similarity, highest first. The tenant filter is applied in SQL so
// foreign points never reach the scoring loop.
func (ix *Index) Search(ctx context.Context, collection string, vector []float32, tenantID string, limit int) ([]avicenna.SearchResult, error) {
	if limit <= 0 {
		limit = avicenna.DefaultTopK
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT tenant_id, title, source, text, embedding
		FROM vector_points
		WHERE collection = ? AND tenant_id = ?`, collection, tenantID)
	if err != nil {
		return nil, depErr("search query: %w", err)
	}
	defer rows.Close()

	var results []avicenna.SearchResult
	var payloads []avicenna.Payload
	for rows.Next() {
		var p avicenna.Payload
		var embedded string
		if err := rows.Scan(&p.TenantID, &p.Title, &p.Source, &p.Text, &embedded); err != nil {
			return nil, depErr("scan point: %w", err)
		}
		vec, err := deserializeEmbedding(embedded)
		if err != nil {
			return nil, depErr("corrupt embedding: %w", err)
		}
		payloads = append(payloads, p)
		results = append(results, avicenna.SearchResult{
			Text:   p.Text,
			Title:  p.Title,
			Source: p.Source,
			Score:  cosineSimilarity(vector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, depErr("iterate points: %w", err)
	}
	if err := avicenna.VerifyTenant(tenantID, payloads...); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// depErr classifies a storage failure as a dependency error so callers can
// tell an unavailable index apart from empty results.
func depErr(format string, args ...any) error {
	return &avicenna.ErrDependency{Service: "sqlite", Err: fmt.Errorf(format, args...)}
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
