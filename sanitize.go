package voiceloop

import (
	"strings"
)

const (
	// replyCharBudget keeps synthesis latency and reliability predictable.
	replyCharBudget = 120

	// emptyReply is spoken when the model produced nothing usable.
	emptyReply = "Okay."
)

// SanitizeReply prepares model output for speech synthesis: non-ASCII runes
// are stripped, whitespace is collapsed, the text is truncated to the
// character budget at a sentence boundary (falling back to a word boundary,
// never mid-word), and terminal punctuation is enforced. The result is
// always non-empty and at most replyCharBudget characters.
func SanitizeReply(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	text := strings.Join(strings.Fields(b.String()), " ")
	if text == "" {
		return emptyReply
	}

	if len(text) > replyCharBudget {
		text = truncateAtBoundary(text, replyCharBudget)
	}

	if !strings.ContainsRune(".!?", rune(text[len(text)-1])) {
		text += "."
	}
	return text
}

// truncateAtBoundary cuts text to at most limit characters, preferring the
// last sentence end within the limit and otherwise the last word break.
func truncateAtBoundary(text string, limit int) string {
	cut := text[:limit]

	if idx := strings.LastIndexAny(cut, ".!?"); idx > 0 {
		return strings.TrimSpace(cut[:idx+1])
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return strings.TrimSpace(cut[:idx])
	}
	// One unbroken token; leave room for the terminal punctuation.
	return cut[:limit-1]
}
