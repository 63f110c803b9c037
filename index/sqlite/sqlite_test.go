package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	avicenna "github.com/avicenna-ai/avicenna"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := New(filepath.Join(t.TempDir(), "index.db"))
	t.Cleanup(func() { ix.Close() })
	if err := ix.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return ix
}

func point(id, tenant, text string, vec []float32) avicenna.Point {
	return avicenna.Point{
		ID:     id,
		Vector: vec,
		Payload: avicenna.Payload{
			TenantID: tenant,
			Title:    "title-" + id,
			Source:   "src-" + id,
			Text:     text,
		},
	}
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.EnsureCollection(ctx, "guidelines", 3); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := ix.EnsureCollection(ctx, "guidelines", 3); err != nil {
		t.Fatalf("repeated ensure: %v", err)
	}
	if err := ix.EnsureCollection(ctx, "guidelines", 4); err == nil {
		t.Fatal("expected error for dimension change")
	} else if !avicenna.IsInputErr(err) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.EnsureCollection(ctx, "guidelines", 2); err != nil {
		t.Fatal(err)
	}
	err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "orthogonal", []float32{0, 1}),
		point("b", "clinic-a", "exact", []float32{1, 0}),
		point("c", "clinic-a", "diagonal", []float32{1, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := ix.Search(ctx, "guidelines", []float32{1, 0}, "clinic-a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "exact" || results[1].Text != "diagonal" {
		t.Errorf("ranking wrong: %q then %q", results[0].Text, results[1].Text)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v", results)
	}
	if results[0].Title != "title-b" || results[0].Source != "src-b" {
		t.Errorf("payload metadata lost: %+v", results[0])
	}
}

func TestSearchIsTenantScoped(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "mine", []float32{1, 0}),
		point("b", "clinic-b", "theirs", []float32{1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := ix.Search(ctx, "guidelines", []float32{1, 0}, "clinic-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "mine" {
		t.Fatalf("tenant scoping broken: %+v", results)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	ix := newTestIndex(t)

	results, err := ix.Search(context.Background(), "guidelines", []float32{1, 0}, "clinic-a", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "old text", []float32{1, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "new text", []float32{1, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	results, err := ix.Search(ctx, "guidelines", []float32{1, 0}, "clinic-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "new text" {
		t.Fatalf("expected single replaced point, got %+v", results)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "guideline", []float32{1, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	results, err := ix.Search(ctx, "notes", []float32{1, 0}, "clinic-a", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("points leaked across collections: %+v", results)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 0}); got != 0 {
		t.Errorf("zero vector: %v", got)
	}
	if got := cosineSimilarity([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched lengths: %v", got)
	}
}

func TestClosedDatabaseReturnsDependencyErr(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if err := ix.EnsureCollection(ctx, "guidelines", 2); err != nil {
		t.Fatal(err)
	}
	if err := ix.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := ix.Search(ctx, "guidelines", []float32{1, 0}, "clinic-a", 5); !avicenna.IsDependencyErr(err) {
		t.Errorf("Search: expected dependency error, got %v", err)
	}
	err := ix.Upsert(ctx, "guidelines", []avicenna.Point{
		point("a", "clinic-a", "text", []float32{1, 0}),
	})
	if !avicenna.IsDependencyErr(err) {
		t.Errorf("Upsert: expected dependency error, got %v", err)
	}
	if err := ix.EnsureCollection(ctx, "other", 2); !avicenna.IsDependencyErr(err) {
		t.Errorf("EnsureCollection: expected dependency error, got %v", err)
	}
}
