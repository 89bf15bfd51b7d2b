package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// withRetries calls fn up to attempts times, returning the first success.
// Retried calls must be idempotent; a failed attempt here means no valid
// result was produced, so repeating it cannot double a side effect.
func withRetries[T any](ctx context.Context, attempts int, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Int("maxAttempts", attempts).Msg("attempt failed")
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
