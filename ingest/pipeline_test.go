package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	avicenna "github.com/avicenna-ai/avicenna"
)

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
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Name() string    { return "fake" }

type fakeIndex struct {
	ensured    map[string]int
	upserts    [][]avicenna.Point
	ensureErr  error
	upsertErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{ensured: make(map[string]int)}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, name string, dim int) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured[name] = dim
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, points []avicenna.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ string, _ int) ([]avicenna.SearchResult, error) {
	return nil, nil
}

func TestIngestHappyPath(t *testing.T) {
	fe := &fakeEmbedder{}
	idx := newFakeIndex()
	ing := NewIngestor(fe, idx, "guidelines")

	doc := avicenna.Document{
		Title:   "Sepsis bundle",
		Source:  "who.int",
		Content: "First paragraph.\n\nSecond paragraph.",
	}
	res, err := ing.Ingest(context.Background(), doc, "clinic-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "ingested" {
		t.Errorf("status = %q, want ingested", res.Status)
	}
	if res.DocumentID == "" {
		t.Error("expected a document ID")
	}
	if res.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", res.Chunks)
	}

	if len(fe.calls) != 1 || len(fe.calls[0]) != 2 {
		t.Fatalf("expected one batched embed call with 2 texts, got %v", fe.calls)
	}
	if idx.ensured["guidelines"] != 3 {
		t.Errorf("collection ensured with dim %d, want 3", idx.ensured["guidelines"])
	}
	if len(idx.upserts) != 1 {
		t.Fatalf("expected one batch upsert, got %d", len(idx.upserts))
	}

	points := idx.upserts[0]
	seen := make(map[string]bool)
	for _, p := range points {
		if p.Payload.TenantID != "clinic-a" {
			t.Errorf("point tenant = %q", p.Payload.TenantID)
		}
		if p.Payload.Title != "Sepsis bundle" || p.Payload.Source != "who.int" {
			t.Errorf("payload metadata lost: %+v", p.Payload)
		}
		if p.ID == "" || seen[p.ID] {
			t.Errorf("point ID %q not unique", p.ID)
		}
		seen[p.ID] = true
		if p.ID == res.DocumentID {
			t.Error("document ID must not be derived from point IDs")
		}
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	fe := &fakeEmbedder{}
	ing := NewIngestor(fe, newFakeIndex(), "guidelines")

	_, err := ing.Ingest(context.Background(), avicenna.Document{Content: "   \n\n  "}, "clinic-a")
	if !avicenna.IsInputErr(err) {
		t.Fatalf("expected input error, got %v", err)
	}
	if len(fe.calls) != 0 {
		t.Error("embedder must not be called for empty documents")
	}
}

func TestIngestEmbedFailureAborts(t *testing.T) {
	idx := newFakeIndex()
	ing := NewIngestor(&fakeEmbedder{failErr: errors.New("model down")}, idx, "guidelines")

	_, err := ing.Ingest(context.Background(), avicenna.Document{Content: "text"}, "clinic-a")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(idx.upserts) != 0 {
		t.Error("no upsert may happen after embed failure")
	}
}

func TestIngestUpsertFailureAborts(t *testing.T) {
	idx := newFakeIndex()
	idx.upsertErr = errors.New("index down")
	ing := NewIngestor(&fakeEmbedder{}, idx, "guidelines")

	_, err := ing.Ingest(context.Background(), avicenna.Document{Content: "text"}, "clinic-a")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIngestRepeatedCallsGetFreshIDs(t *testing.T) {
	idx := newFakeIndex()
	ing := NewIngestor(&fakeEmbedder{}, idx, "guidelines")

	doc := avicenna.Document{Title: "t", Content: "same content"}
	if _, err := ing.Ingest(context.Background(), doc, "clinic-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := ing.Ingest(context.Background(), doc, "clinic-a"); err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, batch := range idx.upserts {
		for _, p := range batch {
			if ids[p.ID] {
				t.Fatalf("point ID %q reused across ingestions", p.ID)
			}
			ids[p.ID] = true
		}
	}
}

func TestIngestFileMarkdown(t *testing.T) {
	idx := newFakeIndex()
	ing := NewIngestor(&fakeEmbedder{}, idx, "guidelines")

	md := "# Triage\n\nAssess airway first.\n\nThen breathing."
	res, err := ing.IngestFile(context.Background(), []byte(md), "triage.md", "clinic-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks == 0 {
		t.Fatal("expected chunks from markdown file")
	}
	var all strings.Builder
	for _, p := range idx.upserts[0] {
		all.WriteString(p.Payload.Text)
		all.WriteString(" ")
	}
	if strings.Contains(all.String(), "#") {
		t.Errorf("markdown structure leaked into chunks: %q", all.String())
	}
	if !strings.Contains(all.String(), "Assess airway first.") {
		t.Errorf("markdown text lost: %q", all.String())
	}
	for _, p := range idx.upserts[0] {
		if p.Payload.Title != "triage.md" || p.Payload.Source != "triage.md" {
			t.Errorf("filename not carried into payload: title=%q source=%q",
				p.Payload.Title, p.Payload.Source)
		}
	}
}
