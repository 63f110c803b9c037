package avicenna

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Reconstructor replays persisted interactions into a typed, role-ordered
// chat transcript. Each raw record is decoded once into a closed set of
// variants (chat turn, legacy case analysis, unrecognized) and then
// replayed in input order.
//
// Reconstruction is best-effort by design: malformed records drop their
// contribution instead of failing the whole transcript. Historical data
// drifts, and a partial transcript beats none. Skips are counted and
// logged so the drift stays visible.
type Reconstructor struct {
	logger *slog.Logger
}

// ReconstructorOption configures a Reconstructor.
type ReconstructorOption func(*Reconstructor)

// WithReconstructorLogger sets the structured logger used to report
// skipped records. Default: discard.
func WithReconstructorLogger(l *slog.Logger) ReconstructorOption {
	return func(r *Reconstructor) { r.logger = l }
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(opts ...ReconstructorOption) *Reconstructor {
	r := &Reconstructor{}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Reconstruct replays interactions, which must already be in creation-time
// order, into a transcript. It returns the messages and the number of
// records that contributed nothing (malformed or unrecognized).
func (r *Reconstructor) Reconstruct(interactions []Interaction) ([]ChatMessage, int) {
	var out []ChatMessage
	skipped := 0

	for _, it := range interactions {
		msgs := replay(decodeInteraction(it))
		if len(msgs) == 0 {
			skipped++
			r.logger.Debug("transcript: record skipped", "interaction_id", it.ID, "case_id", it.CaseID)
			continue
		}
		out = append(out, msgs...)
	}

	if skipped > 0 {
		r.logger.Info("transcript: reconstruction dropped records", "skipped", skipped, "total", len(interactions))
	}
	return out, skipped
}

// --- Variant decode ---

// chatTurn is a stored chat exchange: the request's message list plus the
// response's assistant text, if any.
type chatTurn struct {
	messages  []ChatMessage
	assistant string
}

// legacyCase is an untagged case-analysis record recognized by shape:
// the request carries patient_age, sex, and symptoms.
type legacyCase struct {
	age      string
	sex      string
	symptoms string
	summary  string
}

// variant is the closed set of decoded interaction shapes.
type variant struct {
	chat   *chatTurn
	legacy *legacyCase
	// both nil: unrecognized
}

// decodeInteraction inspects the raw payloads exactly once and classifies
// the record. Anything that fails to decode is unrecognized.
func decodeInteraction(it Interaction) variant {
	var req struct {
		Kind       string          `json:"kind"`
		Messages   []ChatMessage   `json:"messages"`
		PatientAge json.RawMessage `json:"patient_age"`
		Sex        *string         `json:"sex"`
		Symptoms   json.RawMessage `json:"symptoms"`
	}
	if err := json.Unmarshal(it.RequestPayload, &req); err != nil {
		return variant{}
	}

	var resp struct {
		Assistant string `json:"assistant"`
		Summary   string `json:"summary"`
	}
	// A missing or malformed response payload only loses the reply text.
	_ = json.Unmarshal(it.ResponsePayload, &resp)

	if req.Kind == "chat" {
		return variant{chat: &chatTurn{messages: req.Messages, assistant: resp.Assistant}}
	}

	if len(req.PatientAge) > 0 && req.Sex != nil && len(req.Symptoms) > 0 {
		return variant{legacy: &legacyCase{
			age:      rawScalar(req.PatientAge),
			sex:      *req.Sex,
			symptoms: rawList(req.Symptoms),
			summary:  resp.Summary,
		}}
	}

	return variant{}
}

// replay converts a decoded variant into its transcript contribution.
func replay(v variant) []ChatMessage {
	switch {
	case v.chat != nil:
		var out []ChatMessage
		for _, m := range v.chat.messages {
			if (m.Role == "user" || m.Role == "assistant") && m.Content != "" {
				out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
			}
		}
		if v.chat.assistant != "" {
			out = append(out, AssistantMessage(v.chat.assistant))
		}
		return out

	case v.legacy != nil:
		out := []ChatMessage{UserMessage(fmt.Sprintf(
			"Analyze case: %sy %s, symptoms: %s", v.legacy.age, v.legacy.sex, v.legacy.symptoms,
		))}
		if v.legacy.summary != "" {
			out = append(out, AssistantMessage(v.legacy.summary))
		}
		return out

	default:
		return nil
	}
}

// rawScalar renders a raw JSON scalar as plain text: numbers as written,
// strings unquoted, anything else verbatim.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// rawList renders a raw JSON value as a comma-joined list when it is an
// array, or as a stringified scalar otherwise.
func rawList(raw json.RawMessage) string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = rawScalar(item)
		}
		return strings.Join(parts, ", ")
	}
	return rawScalar(raw)
}
