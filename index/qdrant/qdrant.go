// Package qdrant implements avicenna.VectorIndex against the Qdrant REST
// API. It speaks plain HTTP rather than the gRPC client: the surface the
// pipeline needs is three endpoints, and the REST API keeps the dependency
// footprint at net/http.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"
)

const defaultTimeout = 15 * time.Second

// Index is a Qdrant-backed vector index. Every search carries a must-match
// filter on the payload tenant_id, so cross-tenant results cannot leave the
// server even when collections are shared.
type Index struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ avicenna.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithAPIKey sets the api-key header sent on every request.
func WithAPIKey(key string) Option {
	return func(ix *Index) { ix.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ix *Index) { ix.client = c }
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// New creates an Index talking to a Qdrant server at baseURL
// (e.g. "http://localhost:6333").
func New(baseURL string, opts ...Option) *Index {
	ix := &Index{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  nopLogger,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist. Re-ensuring an existing collection is a no-op; Qdrant accepts
// the PUT when the schema matches.
func (ix *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return &avicenna.ErrInput{Message: fmt.Sprintf("invalid collection dimension %d", dimension)}
	}

	exists, err := ix.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := ix.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return err
	}
	ix.logger.Info("qdrant: collection created", "collection", name, "dimension", dimension)
	return nil
}

// Upsert writes points with wait=true so that a successful return means the
// points are searchable. An empty batch is a no-op.
func (ix *Index) Upsert(ctx context.Context, collection string, points []avicenna.Point) error {
	if len(points) == 0 {
		return nil
	}
	reqPoints := make([]upsertPoint, len(points))
	for i, p := range points {
		reqPoints[i] = upsertPoint{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: pointPayload{
				TenantID: p.Payload.TenantID,
				Title:    p.Payload.Title,
				Source:   p.Payload.Source,
				Text:     p.Payload.Text,
			},
		}
	}
	body := map[string]any{"points": reqPoints}
	if err := ix.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
		return err
	}
	ix.logger.Debug("qdrant: points upserted", "collection", collection, "count", len(points))
	return nil
}

// Search runs a cosine similarity search restricted to the tenant's points.
// Results come back highest score first. Payload tenancy is re-verified
// client-side after decoding.
func (ix *Index) Search(ctx context.Context, collection string, vector []float32, tenantID string, limit int) ([]avicenna.SearchResult, error) {
	if limit <= 0 {
		limit = avicenna.DefaultTopK
	}
	body := searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
		Filter: &searchFilter{
			Must: []filterCondition{{
				Key:   "tenant_id",
				Match: filterMatch{Value: tenantID},
			}},
		},
	}

	var resp searchResponse
	if err := ix.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]avicenna.SearchResult, 0, len(resp.Result))
	payloads := make([]avicenna.Payload, 0, len(resp.Result))
	for _, hit := range resp.Result {
		payloads = append(payloads, avicenna.Payload{
			TenantID: hit.Payload.TenantID,
			Title:    hit.Payload.Title,
			Source:   hit.Payload.Source,
			Text:     hit.Payload.Text,
		})
		results = append(results, avicenna.SearchResult{
			Text:   hit.Payload.Text,
			Title:  hit.Payload.Title,
			Source: hit.Payload.Source,
			Score:  hit.Score,
		})
	}
	if err := avicenna.VerifyTenant(tenantID, payloads...); err != nil {
		return nil, err
	}
	return results, nil
}

// collectionExists probes GET /collections/{name}; 404 means missing.
func (ix *Index) collectionExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ix.baseURL+"/collections/"+name, nil)
	if err != nil {
		return false, &avicenna.ErrDependency{Service: "qdrant", Err: err}
	}
	ix.setHeaders(req)

	resp, err := ix.client.Do(req)
	if err != nil {
		return false, &avicenna.ErrDependency{Service: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, ix.httpErr(resp)
	}
}

// do sends a JSON request and optionally decodes the JSON response into out.
func (ix *Index) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &avicenna.ErrDependency{Service: "qdrant", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, ix.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &avicenna.ErrDependency{Service: "qdrant", Err: err}
	}
	ix.setHeaders(req)

	resp, err := ix.client.Do(req)
	if err != nil {
		return &avicenna.ErrDependency{Service: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ix.httpErr(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &avicenna.ErrDependency{Service: "qdrant", Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func (ix *Index) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if ix.apiKey != "" {
		req.Header.Set("api-key", ix.apiKey)
	}
}

func (ix *Index) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &avicenna.ErrDependency{
		Service: "qdrant",
		Err:     &avicenna.ErrHTTP{Status: resp.StatusCode, Body: string(body)},
	}
}

type upsertPoint struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type pointPayload struct {
	TenantID string `json:"tenant_id"`
	Title    string `json:"title,omitempty"`
	Source   string `json:"source,omitempty"`
	Text     string `json:"text"`
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *searchFilter `json:"filter,omitempty"`
}

type searchFilter struct {
	Must []filterCondition `json:"must"`
}

type filterCondition struct {
	Key   string      `json:"key"`
	Match filterMatch `json:"match"`
}

type filterMatch struct {
	Value string `json:"value"`
}

type searchResponse struct {
	Result []struct {
		Score   float32      `json:"score"`
		Payload pointPayload `json:"payload"`
	} `json:"result"`
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
