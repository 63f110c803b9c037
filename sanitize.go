package avicenna

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// zeroWidthChars are Unicode zero-width and invisible characters that show
// up in pasted clinical text and break both chunk boundaries and phrase
// matching downstream.
var zeroWidthChars = strings.NewReplacer(
	"\u200b", " ", // zero-width space
	"\u200c", " ", // zero-width non-joiner
	"\u200d", " ", // zero-width joiner
	"\ufeff", " ", // zero-width no-break space (BOM)
	"\u2060", " ", // word joiner
	"\u00ad", "", // soft hyphen
)

// SanitizeText applies NFKC normalization and strips zero-width characters
// from inbound user text. Handlers run it on chat content, case history,
// and document content before anything is embedded or forwarded to the LLM.
func SanitizeText(s string) string {
	s = norm.NFKC.String(s)
	return zeroWidthChars.Replace(s)
}

// SanitizeMessages sanitizes message contents in place and drops messages
// that are empty after normalization.
func SanitizeMessages(msgs []ChatMessage) []ChatMessage {
	out := msgs[:0]
	for _, m := range msgs {
		m.Content = strings.TrimSpace(SanitizeText(m.Content))
		if m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
