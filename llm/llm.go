// Package llm wraps the language-model backend used to answer finalized
// user turns: a Gemini client, a retrying decorator with a fixed fallback
// reply, and bounded prompt construction.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// FallbackReply is returned when every generation attempt fails. It is the
// reply the user hears; raw backend errors never reach the client.
const FallbackReply = "Sorry, I couldn't process that right now. Please try rephrasing."

// systemPreamble heads every prompt.
const systemPreamble = "You are a helpful, concise voice AI. Keep replies brief."

// promptTurns bounds how much history is rendered into the prompt.
const promptTurns = 10

// Generator produces a reply for a prompt. Implementations may block for the
// duration of the backend call; the context bounds it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// PromptTurn is one history entry rendered into a prompt.
type PromptTurn struct {
	Role    string
	Content string
}

// BuildPrompt renders the system preamble, the most recent promptTurns
// entries as "User:"/"Assistant:" lines, and the assistant cue. The result
// is bounded regardless of total history length.
func BuildPrompt(history []PromptTurn) string {
	if len(history) > promptTurns {
		history = history[len(history)-promptTurns:]
	}

	lines := make([]string, 0, len(history)+2)
	lines = append(lines, systemPreamble)
	for _, turn := range history {
		speaker := "User"
		if turn.Role == "assistant" {
			speaker = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, turn.Content))
	}
	lines = append(lines, "Assistant:")
	return strings.Join(lines, "\n")
}
