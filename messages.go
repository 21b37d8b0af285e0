package voiceloop

// Server-to-client frame types.
const (
	MessageTypeSession  = "session"
	MessageTypePartial  = "partial"
	MessageTypeTurnEnd  = "turn_end"
	MessageTypeTTSChunk = "tts_chunk"
	MessageTypeTTSDone  = "tts_done"
	MessageTypeError    = "error"
)

// Client-to-server control frame types.
const (
	ControlTypeEOS = "eos"
)

// ServerMessage is the JSON frame sent to clients. Type discriminates which
// of the optional fields are populated.
type ServerMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	LLMResponse string `json:"llm_response,omitempty"`
	History     []Turn `json:"history,omitempty"`
	Audio       string `json:"audio,omitempty"` // base64-encoded synthesis chunk
	Message     string `json:"message,omitempty"`
}

// ControlMessage is a text frame sent by the client alongside binary audio
// frames.
type ControlMessage struct {
	Type string `json:"type"`
}
