package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator returns its outcomes in order; the last one repeats.
type scriptedGenerator struct {
	outcomes []outcome
	calls    int
}

type outcome struct {
	text string
	err  error
}

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	idx := s.calls
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	s.calls++
	out := s.outcomes[idx]
	return out.text, out.err
}

func newTestRetrying(inner Generator) (*Retrying, *[]time.Duration) {
	slept := &[]time.Duration{}
	r := NewRetrying(inner, log.New(io.Discard, "", 0))
	r.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return r, slept
}

func TestRetrying_FirstAttemptSucceeds(t *testing.T) {
	inner := &scriptedGenerator{outcomes: []outcome{{text: "hello"}}}
	r, slept := newTestRetrying(inner)

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, *slept)
}

func TestRetrying_RecoversAfterFailures(t *testing.T) {
	inner := &scriptedGenerator{outcomes: []outcome{
		{err: errors.New("boom")},
		{text: ""},
		{text: "third time lucky"},
	}}
	r, slept := newTestRetrying(inner)

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out)
	assert.Equal(t, 3, inner.calls)

	// Backoff grows with the attempt number.
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}, *slept)
}

func TestRetrying_ExhaustionReturnsFallback(t *testing.T) {
	inner := &scriptedGenerator{outcomes: []outcome{{err: errors.New("boom")}}}
	r, _ := newTestRetrying(inner)

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, out)
	assert.Equal(t, maxAttempts, inner.calls)
}

func TestRetrying_EmptyTextCountsAsFailure(t *testing.T) {
	inner := &scriptedGenerator{outcomes: []outcome{{text: ""}}}
	r, _ := newTestRetrying(inner)

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, out)
	assert.Equal(t, maxAttempts, inner.calls)
}

func TestRetrying_CanceledContextStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		return "", errors.New("canceled mid-flight")
	})
	r, slept := newTestRetrying(inner)

	out, err := r.Generate(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, out)
	// No retries after the parent context died.
	assert.Empty(t, *slept)
}
