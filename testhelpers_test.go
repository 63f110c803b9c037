package avicenna

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// fakeEmbedder returns deterministic 4-dim vectors derived from text length
// and first byte. Not normalized, so tests can verify PoolEmbedder output.
type fakeEmbedder struct {
	calls   [][]string
	failErr error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.failErr != nil {
		return nil, f.failErr
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		var first float32
		if t != "" {
			first = float32(t[0])
		}
		vecs[i] = []float32{float32(len(t)), first, 1, 2}
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }
func (f *fakeEmbedder) Name() string    { return "fake" }

// fakeIndex is an in-memory VectorIndex with tenant filtering.
type fakeIndex struct {
	collections map[string]int     // name -> dimension
	points      map[string][]Point // collection -> points
	failErr     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		collections: make(map[string]int),
		points:      make(map[string][]Point),
	}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, name string, dim int) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.collections[name] = dim
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, collection string, points []Point) error {
	if f.failErr != nil {
		return f.failErr
	}
	for _, p := range points {
		replaced := false
		for i, existing := range f.points[collection] {
			if existing.ID == p.ID {
				f.points[collection][i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			f.points[collection] = append(f.points[collection], p)
		}
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, collection string, vector []float32, tenantID string, limit int) ([]SearchResult, error) {
	if f.failErr != nil {
		return nil, &ErrDependency{Service: "vector index", Err: f.failErr}
	}
	type scored struct {
		res   SearchResult
		score float32
	}
	var matches []scored
	for _, p := range f.points[collection] {
		if p.Payload.TenantID != tenantID {
			continue
		}
		var dot float32
		for i := range vector {
			if i < len(p.Vector) {
				dot += vector[i] * p.Vector[i]
			}
		}
		matches = append(matches, scored{
			res: SearchResult{
				Text: p.Payload.Text, Title: p.Payload.Title,
				Source: p.Payload.Source, Score: dot,
			},
			score: dot,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]SearchResult, len(matches))
	for i, m := range matches {
		out[i] = m.res
	}
	return out, nil
}

var errBoom = errors.New("boom")

// containsAll reports whether s contains every substring.
func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
