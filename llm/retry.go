package llm

import (
	"context"
	"log"
	"time"
)

const (
	maxAttempts    = 3
	backoffStep    = 400 * time.Millisecond
	attemptTimeout = 30 * time.Second
)

// Retrying wraps a Generator with bounded retries. Errors and empty replies
// (including safety-filtered ones, which backends report as empty text)
// count as attempt failures. After maxAttempts the fixed FallbackReply is
// returned with a nil error, so callers never see a raw backend failure.
type Retrying struct {
	Inner Generator
	Log   *log.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// NewRetrying wraps inner with the retry policy.
func NewRetrying(inner Generator, logger *log.Logger) *Retrying {
	return &Retrying{
		Inner: inner,
		Log:   logger,
		sleep: time.Sleep,
	}
}

// Generate runs up to maxAttempts attempts with a growing backoff between
// them (backoffStep × attempt number). Each attempt gets its own timeout.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		text, err := r.Inner.Generate(attemptCtx, prompt)
		cancel()

		switch {
		case err != nil:
			r.Log.Printf("Generation attempt %d/%d failed: %v", attempt, maxAttempts, err)
		case text == "":
			r.Log.Printf("Generation attempt %d/%d returned empty text", attempt, maxAttempts)
		default:
			return text, nil
		}

		if ctx.Err() != nil {
			// The connection is gone; the reply will be discarded anyway.
			return FallbackReply, nil
		}
		if attempt < maxAttempts {
			r.sleep(backoffStep * time.Duration(attempt))
		}
	}
	return FallbackReply, nil
}
