package avicenna

import "testing"

func TestSanitizeTextStripsZeroWidth(t *testing.T) {
	in := "chest​pain"
	if got := SanitizeText(in); got != "chest pain" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeTextNFKC(t *testing.T) {
	// Fullwidth digits normalize to ASCII.
	if got := SanitizeText("４２ years"); got != "42 years" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeMessagesDropsEmpty(t *testing.T) {
	msgs := SanitizeMessages([]ChatMessage{
		{Role: "user", Content: "  ​  "},
		{Role: "user", Content: "real question"},
	})
	if len(msgs) != 1 || msgs[0].Content != "real question" {
		t.Errorf("unexpected result: %+v", msgs)
	}
}
