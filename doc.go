// Package avicenna is a multi-tenant clinical decision-support backend.
//
// Clinicians submit case data or chat turns; the backend augments prompts
// with reference text retrieved from a tenant-scoped vector index, forwards
// them to a language-model endpoint, and persists request/response pairs.
// The core of the package is the retrieval-augmented context pipeline and
// the conversational-history reconstruction engine.
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [VectorIndex] — tenant-scoped upsert and cosine similarity search
//   - [Provider] — LLM backend (opaque chat completion)
//   - [InteractionStore] — persisted request/response pairs in creation order
//
// # Pipelines
//
// [Retriever] synthesizes a query from structured case fields, embeds it,
// and searches the tenant's collection. The ingest package chunks documents,
// embeds the chunks in one batch, and upserts them with tenant metadata.
// [Reconstructor] replays persisted interactions into a typed, role-ordered
// chat transcript.
//
// # Included Implementations
//
// Vector indexes: index/qdrant (remote), index/postgres (pgvector),
// index/sqlite (local, brute-force cosine).
// Interaction stores: store/postgres, store/sqlite.
// Providers: provider/openaicompat (vLLM, OpenAI, Ollama and compatible APIs).
//
// See cmd/avicenna for the complete service wiring.
package avicenna
