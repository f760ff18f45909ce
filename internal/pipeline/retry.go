// Package pipeline holds the shared coordination primitives every stage
// reuses (C13): bounded batching, retry with logging, and a resumable
// checkpointed for-each loop.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryLinear retries fn up to attempts times with a fixed delay between
// attempts, logging each failed attempt (grounded on the teacher's
// execWithRetry in internal/sefii/engine.go). It returns the last error if
// every attempt fails, or nil as soon as fn succeeds.
func RetryLinear(ctx context.Context, attempts int, delay time.Duration, label string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		log.Error().Err(lastErr).Int("attempt", attempt).Int("max_attempts", attempts).
			Str("op", label).Msg("attempt failed")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}

// RetryOnce is a single retry for transient store/LLM errors (§7: "one
// retry for transient store/LLM errors").
func RetryOnce(ctx context.Context, label string, fn func() error) error {
	return RetryLinear(ctx, 2, 0, label, fn)
}
