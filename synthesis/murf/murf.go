// Package murf implements the synthesis capability interface over Murf's
// streaming-input WebSocket API.
package murf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/murmurlab/voiceloop/synthesis"
)

const providerName = "murf"

// DefaultEndpoint is Murf's bidirectional streaming endpoint.
const DefaultEndpoint = "wss://api.murf.ai/v1/speech/stream-input"

// Synthesizer implements synthesis.Synthesizer for Murf.
type Synthesizer struct {
	apiKey   string
	endpoint string
}

// NewSynthesizer creates a Murf synthesizer. endpoint may be empty to use
// DefaultEndpoint; tests point it at a local server.
func NewSynthesizer(apiKey, endpoint string) *Synthesizer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Synthesizer{
		apiKey:   apiKey,
		endpoint: endpoint,
	}
}

// Name returns the name of the backend.
func (s *Synthesizer) Name() string {
	return providerName
}

// voiceConfigMessage is the first frame of every session.
type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	VoiceID string `json:"voiceId"`
	Style   string `json:"style,omitempty"`
}

// textMessage submits text under a context.
type textMessage struct {
	Text      string `json:"text"`
	End       bool   `json:"end,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// audioMessage is a server response frame.
type audioMessage struct {
	Audio     string `json:"audio,omitempty"` // base64
	Final     bool   `json:"final,omitempty"`
	ContextID string `json:"context_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewSession dials the streaming endpoint and sends the voice configuration.
func (s *Synthesizer) NewSession(ctx context.Context, config synthesis.SessionConfig) (synthesis.Session, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("murf endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api-key", s.apiKey)
	if config.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", config.SampleRate))
	}
	q.Set("channel_type", "MONO")
	q.Set("format", "WAV")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("murf dial: %w", err)
	}

	if err := conn.WriteJSON(voiceConfigMessage{
		VoiceConfig: voiceConfig{VoiceID: config.Voice, Style: "Conversational"},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("murf voice config: %w", err)
	}

	return &Session{
		conn:      conn,
		contextID: config.ContextID,
	}, nil
}

// Session implements synthesis.Session over one Murf WebSocket connection.
// Submit and ReceiveChunk expect a single caller each; Close may be called
// from any goroutine.
type Session struct {
	conn      *websocket.Conn
	contextID string

	doneRead  bool
	closeOnce sync.Once
	closeErr  error
}

// Submit sends text for synthesis under the session's context id.
func (s *Session) Submit(text string, final bool) error {
	return s.conn.WriteJSON(textMessage{
		Text:      text,
		End:       final,
		ContextID: s.contextID,
	})
}

// ReceiveChunk reads the next audio frame. Frames belonging to other
// contexts are discarded. After the terminal frame, io.EOF is returned.
func (s *Session) ReceiveChunk() (synthesis.Chunk, error) {
	if s.doneRead {
		return synthesis.Chunk{}, io.EOF
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return synthesis.Chunk{}, io.EOF
			}
			return synthesis.Chunk{}, err
		}

		var msg audioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return synthesis.Chunk{}, fmt.Errorf("murf response: %w", err)
		}
		if msg.Error != "" {
			return synthesis.Chunk{}, errors.New(msg.Error)
		}
		if msg.ContextID != "" && msg.ContextID != s.contextID {
			continue
		}

		audio, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return synthesis.Chunk{}, fmt.Errorf("murf audio decode: %w", err)
		}
		if msg.Final {
			s.doneRead = true
		}
		return synthesis.Chunk{Audio: audio, Final: msg.Final}, nil
	}
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
