package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"
)

const maxRequestBodyBytes = 4 << 20 // 4MB

const defaultUserID = "default"

// caseAnalysisResponse is the JSON body returned by POST /api/v1/cases/analyze.
type caseAnalysisResponse struct {
	CaseID      string         `json:"case_id"`
	Summary     string         `json:"summary"`
	ContextUsed int            `json:"context_used"`
	Disclaimer  string         `json:"disclaimer"`
	Usage       avicenna.Usage `json:"usage"`
}

// chatRequest is the parsed body of POST /api/v1/chat.
type chatRequest struct {
	CaseID   string                 `json:"case_id,omitempty"`
	Messages []avicenna.ChatMessage `json:"messages"`
}

type chatResponse struct {
	CaseID  string               `json:"case_id,omitempty"`
	Message avicenna.ChatMessage `json:"message"`
	Usage   avicenna.Usage       `json:"usage"`
}

type historyResponse struct {
	CaseID   string                 `json:"case_id,omitempty"`
	Messages []avicenna.ChatMessage `json:"messages"`
	Skipped  int                    `json:"skipped,omitempty"`
}

// ingestRequest is the parsed body of POST /api/v1/documents/ingest.
// When Filename is set, Content is treated as raw file content and text is
// extracted by extension (markdown, HTML, PDF); otherwise Content is
// ingested as plain text.
type ingestRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Source   string `json:"source,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type noteRequest struct {
	Text string `json:"text"`
}

type noteResponse struct {
	Summary    string         `json:"summary"`
	Disclaimer string         `json:"disclaimer"`
	Usage      avicenna.Usage `json:"usage"`
}

type settingsPayload struct {
	SystemPrompt string `json:"system_prompt"`
}

func (s *Service) handleAnalyzeCase(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var c avicenna.CaseInput
	if !decodeBody(w, r, &c) {
		return
	}
	if err := validateCase(c); err != nil {
		s.writeErr(w, err)
		return
	}
	sanitizeCase(&c)

	ctx := r.Context()
	contexts, err := s.deps.Retriever.Retrieve(ctx, c, tenantID)
	if err != nil {
		// Degraded mode is an explicit deployment choice: without it a
		// retrieval outage fails the request rather than silently
		// answering with no reference context.
		if !s.deps.AllowDegraded {
			s.writeErr(w, err)
			return
		}
		s.deps.Logger.Warn("app: retrieval unavailable, analyzing without context",
			"tenant_id", tenantID, "error", err)
		contexts = nil
	}

	instructions := s.systemPrompt(ctx)
	req := avicenna.ChatRequest{Messages: []avicenna.ChatMessage{
		avicenna.SystemMessage(instructions),
		avicenna.UserMessage(buildCasePrompt(instructions, contexts, c)),
	}}

	started := time.Now()
	resp, err := s.deps.Provider.Chat(ctx, req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	latencyMS := int(time.Since(started).Milliseconds())

	caseID := avicenna.NewID()
	s.persistInteraction(ctx, tenantID, userID(r), caseID, c,
		map[string]string{"summary": resp.Content}, latencyMS)

	writeJSON(w, http.StatusOK, caseAnalysisResponse{
		CaseID:      caseID,
		Summary:     truncateRunes(resp.Content, summaryRuneLimit),
		ContextUsed: len(contexts),
		Disclaimer:  disclaimer,
		Usage:       resp.Usage,
	})
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Messages = avicenna.SanitizeMessages(req.Messages)
	if len(req.Messages) == 0 {
		s.writeErr(w, &avicenna.ErrInput{Message: "messages are required"})
		return
	}

	ctx := r.Context()
	uid := userID(r)

	// Attach the turn to the caller's case: explicit case_id wins, else the
	// most recent case for this tenant+user.
	caseID := req.CaseID
	if caseID == "" {
		latest, err := s.deps.Store.LatestCaseID(ctx, tenantID, uid)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		caseID = latest
	}

	messages := append([]avicenna.ChatMessage{
		avicenna.SystemMessage(s.systemPrompt(ctx)),
	}, req.Messages...)

	started := time.Now()
	resp, err := s.deps.Provider.Chat(ctx, avicenna.ChatRequest{Messages: messages})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	latencyMS := int(time.Since(started).Milliseconds())

	// Without a case there is nothing to attach the interaction to; the
	// turn is still answered.
	if caseID != "" {
		s.persistInteraction(ctx, tenantID, uid, caseID,
			map[string]any{"kind": "chat", "messages": req.Messages},
			map[string]string{"assistant": resp.Content}, latencyMS)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		CaseID:  caseID,
		Message: avicenna.AssistantMessage(resp.Content),
		Usage:   resp.Usage,
	})
}

func (s *Service) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	uid := userID(r)

	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		latest, err := s.deps.Store.LatestCaseID(ctx, tenantID, uid)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		caseID = latest
	}
	if caseID == "" {
		writeJSON(w, http.StatusOK, historyResponse{Messages: []avicenna.ChatMessage{}})
		return
	}

	interactions, err := s.deps.Store.ListInteractions(ctx, tenantID, uid, caseID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	messages, skipped := s.deps.Reconstructor.Reconstruct(interactions)
	if messages == nil {
		messages = []avicenna.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		CaseID:   caseID,
		Messages: messages,
		Skipped:  skipped,
	})
}

func (s *Service) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var res avicenna.IngestResult
	var err error
	if req.Filename != "" {
		res, err = s.deps.Ingestor.IngestFile(r.Context(), []byte(req.Content), req.Filename, tenantID)
	} else {
		doc := avicenna.Document{
			Title:   strings.TrimSpace(req.Title),
			Content: req.Content,
			Source:  req.Source,
		}
		res, err = s.deps.Ingestor.Ingest(r.Context(), doc, tenantID)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleSummarizeNote(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}

	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text := avicenna.SanitizeText(req.Text)
	if strings.TrimSpace(text) == "" {
		s.writeErr(w, &avicenna.ErrInput{Message: "text is required"})
		return
	}

	ctx := r.Context()
	resp, err := s.deps.Provider.Chat(ctx, avicenna.ChatRequest{Messages: []avicenna.ChatMessage{
		avicenna.SystemMessage(s.systemPrompt(ctx)),
		avicenna.UserMessage("Summarize clinically: " + text),
	}})
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, noteResponse{
		Summary:    truncateRunes(resp.Content, summaryRuneLimit),
		Disclaimer: disclaimer,
		Usage:      resp.Usage,
	})
}

func (s *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{SystemPrompt: s.systemPrompt(r.Context())})
}

func (s *Service) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.tenant(w, r); !ok {
		return
	}

	var req settingsPayload
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		s.writeErr(w, &avicenna.ErrInput{Message: "system_prompt is required"})
		return
	}
	if err := s.deps.Store.SetSetting(r.Context(), systemPromptKey, req.SystemPrompt); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// persistInteraction appends one interaction row; failures are logged but do
// not fail the request, since the response already exists.
func (s *Service) persistInteraction(ctx context.Context, tenantID, uid, caseID string, reqPayload, respPayload any, latencyMS int) {
	reqJSON, err := json.Marshal(reqPayload)
	if err != nil {
		s.deps.Logger.Error("app: marshal interaction request", "error", err)
		return
	}
	respJSON, err := json.Marshal(respPayload)
	if err != nil {
		s.deps.Logger.Error("app: marshal interaction response", "error", err)
		return
	}
	it := avicenna.Interaction{
		ID:              avicenna.NewID(),
		CaseID:          caseID,
		TenantID:        tenantID,
		UserID:          uid,
		RequestPayload:  reqJSON,
		ResponsePayload: respJSON,
		Model:           s.deps.Model,
		LatencyMS:       latencyMS,
		CreatedAt:       avicenna.NowUnix(),
	}
	if err := s.deps.Store.AppendInteraction(ctx, it); err != nil {
		s.deps.Logger.Error("app: persist interaction",
			"interaction_id", it.ID, "case_id", caseID, "error", err)
	}
}

// tenant resolves the request tenant: X-Tenant-ID header, then the
// configured default. Writes a 400 and returns false when neither exists.
func (s *Service) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = s.deps.DefaultTenant
	}
	if tenantID == "" {
		s.writeErr(w, &avicenna.ErrInput{Message: "X-Tenant-ID header is required"})
		return "", false
	}
	return tenantID, true
}

func userID(r *http.Request) string {
	if uid := r.Header.Get("X-User-ID"); uid != "" {
		return uid
	}
	return defaultUserID
}

func validateCase(c avicenna.CaseInput) error {
	if c.PatientAge <= 0 || c.PatientAge > 130 {
		return &avicenna.ErrInput{Message: "patient_age must be between 1 and 130"}
	}
	if strings.TrimSpace(c.Sex) == "" {
		return &avicenna.ErrInput{Message: "sex is required"}
	}
	if len(c.Symptoms) == 0 {
		return &avicenna.ErrInput{Message: "at least one symptom is required"}
	}
	return nil
}

func sanitizeCase(c *avicenna.CaseInput) {
	c.Sex = avicenna.SanitizeText(c.Sex)
	c.History = avicenna.SanitizeText(c.History)
	for i, sym := range c.Symptoms {
		c.Symptoms[i] = avicenna.SanitizeText(sym)
	}
	for i, med := range c.Medications {
		c.Medications[i] = avicenna.SanitizeText(med)
	}
}

// decodeBody parses the JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeErr maps domain errors to HTTP statuses: input errors are the
// caller's fault, dependency errors mean an upstream service is down, and
// everything else is a server fault.
func (s *Service) writeErr(w http.ResponseWriter, err error) {
	switch {
	case avicenna.IsInputErr(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, avicenna.ErrTenantIsolation):
		s.deps.Logger.Error("app: tenant isolation violation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	case avicenna.IsDependencyErr(err):
		s.deps.Logger.Error("app: upstream dependency failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.deps.Logger.Error("app: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
