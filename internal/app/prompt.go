package app

import (
	"context"
	"fmt"
	"strings"

	avicenna "github.com/avicenna-ai/avicenna"
)

// systemPromptKey is the settings key holding the admin-managed system
// prompt.
const systemPromptKey = "system_prompt"

// defaultSystemPrompt is used until an admin stores a replacement.
const defaultSystemPrompt = "You are a medical decision support assistant. Do not prescribe or dose. " +
	"Provide structured case summary, differential diagnoses with uncertainty, red flags, and escalation advice. " +
	"Include disclaimers."

// disclaimer is appended to every clinical response. Model output is
// guidance, never advice.
const disclaimer = "This is not medical advice. Consult a qualified clinician if concerned, " +
	"or escalate to emergency services for red-flag symptoms."

// summaryRuneLimit caps summaries returned to clients. The full model
// output is still persisted on the interaction.
const summaryRuneLimit = 500

// systemPrompt returns the admin-configured system prompt, or the default
// when unset or the settings lookup fails.
func (s *Service) systemPrompt(ctx context.Context) string {
	prompt, err := s.deps.Store.GetSetting(ctx, systemPromptKey)
	if err != nil {
		s.deps.Logger.Warn("app: settings lookup failed, using default prompt", "error", err)
		return defaultSystemPrompt
	}
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}

// buildCasePrompt assembles the analysis prompt: instructions, retrieved
// context block, then patient details.
func buildCasePrompt(instructions string, contexts []string, c avicenna.CaseInput) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contexts, "\n"))
	fmt.Fprintf(&b, "\n\nPatient details: Age: %d, Sex: %s, Symptoms: %s.",
		c.PatientAge, c.Sex, strings.Join(c.Symptoms, ", "))
	return b.String()
}

// truncateRunes cuts s to at most n runes without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
