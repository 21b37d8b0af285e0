// Package synthesis defines the capability interface for streaming
// speech-synthesis backends: submit text under a correlation context, pull
// audio chunks as they arrive.
package synthesis

import (
	"context"
)

// Synthesizer creates synthesis sessions. One session carries one assistant
// utterance; the context id scopes its chunks so overlapping requests on the
// same backend connection cannot cross-talk.
type Synthesizer interface {
	// Name returns a short stable identifier for the backend.
	Name() string

	// NewSession opens a streaming synthesis session.
	NewSession(ctx context.Context, config SessionConfig) (Session, error)
}

// Session is one streaming synthesis exchange.
type Session interface {
	// Submit sends text to be synthesized. final marks the end of input for
	// this context; the backend flushes its remaining audio afterwards.
	Submit(text string, final bool) error

	// ReceiveChunk blocks until an audio chunk is available. The terminal
	// chunk has Final set. Returns io.EOF once the session has delivered its
	// terminal chunk or has been closed.
	ReceiveChunk() (Chunk, error)

	// Close releases the session. Safe to call after an error and more than
	// once.
	Close() error
}

// SessionConfig configures one synthesis session.
type SessionConfig struct {
	// Voice identifies the backend voice (e.g. "en-US-ken").
	Voice string

	// ContextID correlates this utterance's chunks. Must be unique among
	// concurrent sessions on the same backend connection.
	ContextID string

	// SampleRate of the produced audio in Hz. Zero lets the backend choose.
	SampleRate int
}

// Chunk is one piece of synthesized audio.
type Chunk struct {
	// Audio is raw decoded audio data.
	Audio []byte

	// Final marks the last chunk of the context.
	Final bool
}
