package voiceloop

import (
	"sync"
)

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// maxTurnsPerConversation bounds per-conversation memory in long-lived
	// processes. Oldest turns are dropped first.
	maxTurnsPerConversation = 200

	// displayTurns is how much history is returned to clients.
	displayTurns = 20
)

// Turn is one utterance in a conversation. Turns are immutable once appended.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryStore maps conversation ids to ordered turn histories. It is safe
// for concurrent use by multiple connections. Each append is atomic, but the
// store does not arbitrate two live connections sharing a conversation id;
// their appends interleave in lock-acquisition order.
type HistoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Turn
}

// NewHistoryStore creates an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		conversations: make(map[string][]Turn),
	}
}

// Append adds a turn to the end of the conversation, creating the
// conversation if it does not exist yet.
func (hs *HistoryStore) Append(conversationID, role, content string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	turns := append(hs.conversations[conversationID], Turn{Role: role, Content: content})
	if len(turns) > maxTurnsPerConversation {
		turns = turns[len(turns)-maxTurnsPerConversation:]
	}
	hs.conversations[conversationID] = turns
}

// Recent returns a copy of the most recent n turns of the conversation,
// oldest first. A missing conversation yields an empty slice.
func (hs *HistoryStore) Recent(conversationID string, n int) []Turn {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	turns := hs.conversations[conversationID]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len returns the number of turns stored for the conversation.
func (hs *HistoryStore) Len(conversationID string) int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.conversations[conversationID])
}
