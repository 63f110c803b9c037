package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"
)

// Ingestor runs the full ingestion pipeline: chunk, embed in one batch,
// ensure the collection, upsert. A failure at any stage aborts the whole
// call; nothing is retried, and the caller re-submits the document.
type Ingestor struct {
	chunker    Chunker
	embedding  avicenna.EmbeddingProvider
	index      avicenna.VectorIndex
	collection string
	logger     *slog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithChunker replaces the default paragraph chunker.
func WithChunker(c Chunker) IngestorOption {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(l *slog.Logger) IngestorOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// NewIngestor creates an Ingestor writing to the named collection.
func NewIngestor(embedding avicenna.EmbeddingProvider, index avicenna.VectorIndex, collection string, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		chunker:    NewParagraphChunker(),
		embedding:  embedding,
		index:      index,
		collection: collection,
		logger:     nopLogger,
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// Ingest chunks the document content, embeds all chunks in one batch, and
// upserts one point per chunk with tenant/title/source metadata. Point IDs
// are globally unique, so repeated ingestions never overwrite unrelated
// points. A document with no recoverable chunk is an input error; the
// embedder is never called with an empty list.
func (ing *Ingestor) Ingest(ctx context.Context, doc avicenna.Document, tenantID string) (avicenna.IngestResult, error) {
	start := time.Now()

	chunks := ing.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		return avicenna.IngestResult{}, &avicenna.ErrInput{Message: "document has no ingestible content"}
	}

	vecs, err := ing.embedding.Embed(ctx, chunks)
	if err != nil {
		return avicenna.IngestResult{}, fmt.Errorf("ingest: embed chunks: %w", err)
	}

	dim := len(vecs[0])
	if err := ing.index.EnsureCollection(ctx, ing.collection, dim); err != nil {
		return avicenna.IngestResult{}, fmt.Errorf("ingest: ensure collection: %w", err)
	}

	points := make([]avicenna.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = avicenna.Point{
			ID:     avicenna.NewID(),
			Vector: vecs[i],
			Payload: avicenna.Payload{
				TenantID: tenantID,
				Title:    doc.Title,
				Source:   doc.Source,
				Text:     chunk,
			},
		}
	}

	if err := ing.index.Upsert(ctx, ing.collection, points); err != nil {
		return avicenna.IngestResult{}, fmt.Errorf("ingest: upsert points: %w", err)
	}

	docID := avicenna.NewID()
	ing.logger.Info("ingest: document ingested",
		"document_id", docID, "tenant_id", tenantID,
		"chunks", len(chunks), "duration", time.Since(start))

	return avicenna.IngestResult{
		Status:     "ingested",
		DocumentID: docID,
		Chunks:     len(chunks),
	}, nil
}

// IngestFile extracts text from raw file content based on the filename
// extension, then ingests it. The filename becomes the document source and
// its base name the title.
func (ing *Ingestor) IngestFile(ctx context.Context, content []byte, filename, tenantID string) (avicenna.IngestResult, error) {
	ct := ContentTypeFromExtension(filepath.Ext(filename))
	text, err := ExtractorFor(ct).Extract(content)
	if err != nil {
		return avicenna.IngestResult{}, &avicenna.ErrInput{Message: fmt.Sprintf("extract %s: %v", filename, err)}
	}
	doc := avicenna.Document{
		Title:   filepath.Base(filename),
		Content: text,
		Source:  filename,
	}
	return ing.Ingest(ctx, doc, tenantID)
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
