package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	avicenna "github.com/avicenna-ai/avicenna"
)

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created bool
	var createBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/guidelines":
			http.NotFound(w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines":
			created = true
			json.NewDecoder(r.Body).Decode(&createBody)
			w.Write([]byte(`{"result":true}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ix := New(srv.URL)
	if err := ix.EnsureCollection(context.Background(), "guidelines", 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected collection creation PUT")
	}
	vectors := createBody["vectors"].(map[string]any)
	if vectors["size"].(float64) != 768 || vectors["distance"] != "Cosine" {
		t.Errorf("unexpected create body: %v", createBody)
	}
}

func TestEnsureCollectionExistingIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s request for existing collection", r.Method)
		}
		w.Write([]byte(`{"result":{"status":"green"}}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).EnsureCollection(context.Background(), "guidelines", 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollectionRejectsInvalidDimension(t *testing.T) {
	err := New("http://unused").EnsureCollection(context.Background(), "guidelines", 0)
	if !avicenna.IsInputErr(err) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestUpsertSendsWaitAndPayload(t *testing.T) {
	var gotPath string
	var body struct {
		Points []upsertPoint `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer srv.Close()

	points := []avicenna.Point{{
		ID:     avicenna.NewID(),
		Vector: []float32{0.1, 0.2},
		Payload: avicenna.Payload{
			TenantID: "clinic-a", Title: "Sepsis", Source: "who.int", Text: "chunk text",
		},
	}}
	if err := New(srv.URL).Upsert(context.Background(), "guidelines", points); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/collections/guidelines/points?wait=true" {
		t.Errorf("path = %q, want wait=true upsert", gotPath)
	}
	if len(body.Points) != 1 || body.Points[0].Payload.TenantID != "clinic-a" {
		t.Errorf("payload not carried: %+v", body.Points)
	}
}

func TestUpsertEmptyBatchSkipsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP request expected for empty batch")
	}))
	defer srv.Close()

	if err := New(srv.URL).Upsert(context.Background(), "guidelines", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchSendsTenantFilter(t *testing.T) {
	var body searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"tenant_id":"clinic-a","title":"Sepsis","source":"who.int","text":"first"}},
			{"score":0.80,"payload":{"tenant_id":"clinic-a","text":"second"}}
		]}`))
	}))
	defer srv.Close()

	results, err := New(srv.URL).Search(context.Background(), "guidelines", []float32{1, 0}, "clinic-a", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body.Limit != 5 || !body.WithPayload {
		t.Errorf("request = %+v, want limit 5 with payload", body)
	}
	if body.Filter == nil || len(body.Filter.Must) != 1 {
		t.Fatalf("missing tenant filter: %+v", body.Filter)
	}
	cond := body.Filter.Must[0]
	if cond.Key != "tenant_id" || cond.Match.Value != "clinic-a" {
		t.Errorf("filter condition = %+v", cond)
	}

	if len(results) != 2 || results[0].Text != "first" || results[0].Score != 0.91 {
		t.Errorf("results = %+v", results)
	}
	if results[1].Title != "" || results[1].Source != "" {
		t.Errorf("optional payload fields should stay empty: %+v", results[1])
	}
}

func TestSearchRejectsForeignTenantPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{"score":0.9,"payload":{"tenant_id":"clinic-b","text":"leak"}}]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Search(context.Background(), "guidelines", []float32{1}, "clinic-a", 5)
	if !errors.Is(err, avicenna.ErrTenantIsolation) {
		t.Fatalf("expected tenant isolation error, got %v", err)
	}
}

func TestServerErrorSurfacesAsDependencyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Search(context.Background(), "guidelines", []float32{1}, "clinic-a", 5)
	if !avicenna.IsDependencyErr(err) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	var httpErr *avicenna.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped ErrHTTP 503, got %v", err)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("api-key")
		w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	New(srv.URL, WithAPIKey("secret")).collectionExists(context.Background(), "guidelines")
	if got != "secret" {
		t.Errorf("api-key header = %q, want secret", got)
	}
}
