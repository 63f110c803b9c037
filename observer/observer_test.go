package observer

import (
	"context"
	"errors"
	"math"
	"testing"

	avicenna "github.com/avicenna-ai/avicenna"
)

// newInstruments against the default (no-op) global providers; wrappers must
// behave as pure passthroughs when nothing is exported.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

type fakeProvider struct {
	resp avicenna.ChatResponse
	err  error
	got  avicenna.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req avicenna.ChatRequest) (avicenna.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}
func (f *fakeProvider) Name() string { return "fake" }

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int { return 1 }
func (f *fakeEmbedder) Name() string    { return "fake" }

type fakeIndex struct {
	results []avicenna.SearchResult
	err     error
}

func (f *fakeIndex) EnsureCollection(context.Context, string, int) error { return f.err }
func (f *fakeIndex) Upsert(context.Context, string, []avicenna.Point) error {
	return f.err
}
func (f *fakeIndex) Search(context.Context, string, []float32, string, int) ([]avicenna.SearchResult, error) {
	return f.results, f.err
}

func TestObservedProviderPassthrough(t *testing.T) {
	inner := &fakeProvider{resp: avicenna.ChatResponse{
		Content: "answer",
		Usage:   avicenna.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	p := WrapProvider(inner, "gpt-4o-mini", testInstruments(t))

	if p.Name() != "fake" {
		t.Errorf("Name() = %q", p.Name())
	}
	req := avicenna.ChatRequest{Messages: []avicenna.ChatMessage{avicenna.UserMessage("hi")}}
	resp, err := p.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "answer" || resp.Usage.InputTokens != 10 {
		t.Errorf("response altered: %+v", resp)
	}
	if len(inner.got.Messages) != 1 {
		t.Errorf("request altered: %+v", inner.got)
	}
}

func TestObservedProviderPropagatesError(t *testing.T) {
	boom := errors.New("provider down")
	p := WrapProvider(&fakeProvider{err: boom}, "m", testInstruments(t))

	_, err := p.Chat(context.Background(), avicenna.ChatRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("error not propagated: %v", err)
	}
}

func TestObservedEmbeddingPassthrough(t *testing.T) {
	e := WrapEmbedding(&fakeEmbedder{}, "embed-model", testInstruments(t))

	if e.Dimensions() != 1 || e.Name() != "fake" {
		t.Errorf("identity methods altered: %d %q", e.Dimensions(), e.Name())
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("got %v, %v", vecs, err)
	}
}

func TestObservedEmbeddingPropagatesError(t *testing.T) {
	boom := errors.New("embed down")
	e := WrapEmbedding(&fakeEmbedder{err: boom}, "m", testInstruments(t))

	if _, err := e.Embed(context.Background(), []string{"a"}); !errors.Is(err, boom) {
		t.Fatalf("error not propagated: %v", err)
	}
}

func TestObservedIndexPassthrough(t *testing.T) {
	inner := &fakeIndex{results: []avicenna.SearchResult{{Text: "hit", Score: 0.9}}}
	ix := WrapIndex(inner, testInstruments(t))
	ctx := context.Background()

	if err := ix.EnsureCollection(ctx, "c", 3); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(ctx, "c", nil); err != nil {
		t.Fatal(err)
	}
	results, err := ix.Search(ctx, "c", []float32{1}, "clinic-a", 5)
	if err != nil || len(results) != 1 || results[0].Text != "hit" {
		t.Fatalf("got %v, %v", results, err)
	}
}

func TestObservedIndexPropagatesError(t *testing.T) {
	boom := errors.New("index down")
	ix := WrapIndex(&fakeIndex{err: boom}, testInstruments(t))

	if _, err := ix.Search(context.Background(), "c", []float32{1}, "t", 5); !errors.Is(err, boom) {
		t.Fatalf("error not propagated: %v", err)
	}
}

func TestCostCalculator(t *testing.T) {
	c := NewCostCalculator(map[string]ModelPricing{"custom": {1.0, 2.0}})

	if got := c.Calculate("unknown-local-model", 1000, 1000); got != 0 {
		t.Errorf("unknown model cost = %v, want 0", got)
	}
	got := c.Calculate("custom", 1_000_000, 500_000)
	if math.Abs(got-2.0) > 1e-9 {
		t.Errorf("custom cost = %v, want 2.0", got)
	}
	if c.Calculate("gpt-4o-mini", 1_000_000, 0) == 0 {
		t.Error("default pricing missing for gpt-4o-mini")
	}
}
