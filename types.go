package avicenna

import "encoding/json"

// --- Domain types ---

// CaseInput is a structured clinical case submitted for analysis.
type CaseInput struct {
	PatientAge  int             `json:"patient_age"`
	Sex         string          `json:"sex"`
	Symptoms    []string        `json:"symptoms"`
	History     string          `json:"history,omitempty"`
	Medications []string        `json:"medications,omitempty"`
	Vitals      json.RawMessage `json:"vitals,omitempty"`
}

// Document is raw reference material submitted for ingestion. It is not
// persisted as an entity itself; only its derived chunks reach the index.
type Document struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Payload is the metadata stored alongside each vector point.
type Payload struct {
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
	Source   string `json:"source,omitempty"`
	Text     string `json:"text"`
}

// Point is one embedded chunk ready for upsert into a vector index.
// IDs are globally unique so repeated ingestions never overwrite
// unrelated points.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// SearchResult is a scored payload returned by a vector index search.
// Score is cosine similarity; higher means more relevant.
type SearchResult struct {
	Text   string  `json:"text"`
	Title  string  `json:"title"`
	Source string  `json:"source,omitempty"`
	Score  float32 `json:"score"`
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// Interaction is a persisted request/response pair from a prior invocation.
// The transcript reconstructor only reads these; handlers write them after
// each LLM call.
type Interaction struct {
	ID              string          `json:"id"`
	CaseID          string          `json:"case_id"`
	TenantID        string          `json:"tenant_id"`
	UserID          string          `json:"user_id"`
	RequestPayload  json.RawMessage `json:"request_payload"`
	ResponsePayload json.RawMessage `json:"response_payload"`
	Model           string          `json:"model"`
	LatencyMS       int             `json:"latency_ms"`
	CreatedAt       int64           `json:"created_at"`
}

// --- LLM protocol types ---

// ChatMessage is one role-tagged message in a conversation or transcript.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}
