package voiceloop

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// audioSink persists received audio append-only, one file per connection,
// keyed by the connection-start timestamp. Writes are best-effort: a failing
// sink disables itself and never aborts the live pipeline.
type audioSink struct {
	file   *os.File
	writer *bufio.Writer
	failed bool
}

// newAudioSink creates the recordings directory if needed and opens the
// file. Returns an error only on creation; later write failures are
// swallowed after marking the sink dead.
func newAudioSink(dir string, start time.Time) (*audioSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recordings dir: %w", err)
	}

	name := fmt.Sprintf("%s.pcm", start.UTC().Format("20060102T150405.000"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recording file: %w", err)
	}

	return &audioSink{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends audio bytes. Reports whether the sink is still usable so the
// caller can log the failure exactly once.
func (s *audioSink) Write(p []byte) bool {
	if s.failed {
		return false
	}
	if _, err := s.writer.Write(p); err != nil {
		s.failed = true
		return false
	}
	return true
}

// Close flushes and closes the file.
func (s *audioSink) Close() error {
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
