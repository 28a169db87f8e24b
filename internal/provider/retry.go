package provider

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls backoff between provider call attempts.
// Delays grow as base*2^attempt capped at Max, with ±25% jitter so
// concurrent callers don't retry in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the documented provider contract: at most
// three attempts, 250ms base, 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns how long to wait before the given retry attempt
// (0-based: the delay before attempt 1 uses attempt=0). A positive
// retryAfter, taken from a 429 Retry-After header, overrides the
// computed backoff entirely.
func (p RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	// ±25% jitter
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(backoff * jitter)
}
