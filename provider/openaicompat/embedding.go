package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	avicenna "github.com/avicenna-ai/avicenna"
)

// Embedding implements avicenna.EmbeddingProvider against an OpenAI-format
// /embeddings endpoint.
type Embedding struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
	name       string
}

var _ avicenna.EmbeddingProvider = (*Embedding)(nil)

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithEmbeddingName overrides the name reported by Name(). Default "openai".
func WithEmbeddingName(name string) EmbeddingOption {
	return func(e *Embedding) { e.name = name }
}

// WithEmbeddingHTTPClient replaces the default HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// NewEmbedding creates an OpenAI-compatible embedding provider.
// dimensions is the vector size the model produces; callers use it to size
// collections before the first embedding call.
func NewEmbedding(apiKey, model, baseURL string, dimensions int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
		client:     &http.Client{},
		name:       "openai",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dimensions }

// Embed embeds all texts in one request. Vectors come back in input order;
// the OpenAI format tags each datum with its index, so ordering survives
// servers that return data out of order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body := embedBody{Model: e.model, Input: texts}
	var parsed embedReply
	if err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, e.name, body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, &avicenna.ErrDependency{
			Service: e.name,
			Err:     fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data)),
		}
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

type embedBody struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedReply struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
