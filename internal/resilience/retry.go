// Package resilience wraps external-service calls with retry and
// circuit-breaker policies. The two compose breaker-outside-retry: a breaker
// observes one success or failure per logical call, not one per inner attempt.
package resilience

import (
	"context"
	"log"
	"time"
)

// RetryPolicy bounds a retried operation.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy mirrors the processing defaults: three attempts,
// two-second initial delay, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 2 * time.Second, BackoffFactor: 2.0}
}

// Retry runs op up to p.MaxAttempts times with exponentially increasing
// delays between attempts. retryable decides whether a given error is worth
// another attempt; a non-retryable error aborts immediately. The last error
// is returned when attempts run out.
func Retry(ctx context.Context, name string, p RetryPolicy, retryable func(error) bool, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2.0
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			log.Printf("[retry] %s: all %d attempts failed: %v", name, p.MaxAttempts, lastErr)
			return lastErr
		}

		log.Printf("[retry] %s: attempt %d failed: %v — retrying in %s", name, attempt, lastErr, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}

	return lastErr
}
