// Package app wires the HTTP API: case analysis, chat, history
// reconstruction, document ingestion, note summarization, and admin
// settings. Handlers resolve the tenant from the X-Tenant-ID header and
// never trust payload tenancy.
package app

import (
	"context"
	"log/slog"
	"net/http"

	avicenna "github.com/avicenna-ai/avicenna"
	"github.com/avicenna-ai/avicenna/ingest"
)

// Deps holds the collaborators the service needs. All fields except Logger
// are required.
type Deps struct {
	Provider      avicenna.Provider
	Retriever     *avicenna.Retriever
	Ingestor      *ingest.Ingestor
	Store         avicenna.InteractionStore
	Reconstructor *avicenna.Reconstructor
	Logger        *slog.Logger

	// Model is recorded on persisted interactions.
	Model string
	// DefaultTenant applies when a request has no X-Tenant-ID header.
	// Empty makes the header mandatory.
	DefaultTenant string
	// AllowDegraded lets case analysis proceed without retrieved context
	// when the embedding service or vector index is unavailable. Off by
	// default: a silent drop in answer quality is worse than a 502.
	AllowDegraded bool
}

// Service is the HTTP API service.
type Service struct {
	deps Deps
}

// New creates a Service. A nil Logger falls back to a discarding logger.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = nopLogger
	}
	return &Service{deps: deps}
}

// Handler returns the routed HTTP handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/cases/analyze", s.handleAnalyzeCase)
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("GET /api/v1/chat/history", s.handleChatHistory)
	mux.HandleFunc("POST /api/v1/documents/ingest", s.handleIngestDocument)
	mux.HandleFunc("POST /api/v1/notes/summarize", s.handleSummarizeNote)
	mux.HandleFunc("GET /api/v1/admin/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/admin/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
