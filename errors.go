package voiceloop

import "fmt"

// ErrorKind classifies pipeline failures for logging and for deciding what
// reaches the client. Only transport errors tear the connection down;
// everything else degrades to a visible but non-fatal outcome.
type ErrorKind string

const (
	KindTransport     ErrorKind = "transport"
	KindTranscription ErrorKind = "transcription"
	KindGeneration    ErrorKind = "generation"
	KindSynthesis     ErrorKind = "synthesis"
	KindProtocol      ErrorKind = "protocol"
)

// PipelineError wraps a backend failure with its kind.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WrapError tags err with a kind. Returns nil if err is nil.
func WrapError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: kind, Err: err}
}
