package avicenna

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTopK is the retrieval result cap when no option overrides it.
const DefaultTopK = 5

// Retriever builds a query from structured case fields, embeds it, and
// searches the tenant's collection for reference context.
type Retriever struct {
	embedding  EmbeddingProvider
	index      VectorIndex
	collection string
	topK       int
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithTopK sets the maximum number of context snippets returned per query.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// NewRetriever creates a Retriever over the given embedding provider and
// vector index. collection names the tenant-partitioned collection to query.
func NewRetriever(embedding EmbeddingProvider, index VectorIndex, collection string, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedding:  embedding,
		index:      index,
		collection: collection,
		topK:       DefaultTopK,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// BuildCaseQuery synthesizes the retrieval query string from case fields.
// History and medications clauses are appended only when present, with no
// trailing separators.
func BuildCaseQuery(c CaseInput) string {
	parts := []string{
		fmt.Sprintf("Age: %d, Sex: %s, Symptoms: %s", c.PatientAge, c.Sex, strings.Join(c.Symptoms, ", ")),
	}
	if c.History != "" {
		parts = append(parts, "History: "+c.History)
	}
	if len(c.Medications) > 0 {
		parts = append(parts, "Medications: "+strings.Join(c.Medications, ", "))
	}
	return strings.Join(parts, " | ")
}

// Retrieve returns up to topK context snippets for the case, in the index's
// ranked order. No re-ranking, no deduplication. Embedding or index errors
// propagate as retrieval failures; the caller decides whether to proceed
// without context or abort.
func (r *Retriever) Retrieve(ctx context.Context, c CaseInput, tenantID string) ([]string, error) {
	query := BuildCaseQuery(c)

	vecs, err := r.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	results, err := r.index.Search(ctx, r.collection, vecs[0], tenantID, r.topK)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return texts, nil
}
