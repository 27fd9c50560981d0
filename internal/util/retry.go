package util

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls Retry: jittered exponential backoff.
type RetryConfig struct {
	Attempts int           // total attempts, including the first
	Base     time.Duration // first delay
	Factor   float64       // delay multiplier per attempt
}

// DefaultRetryConfig matches the runtime-wide policy: base 500ms, factor 2,
// 3 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Base: 500 * time.Millisecond, Factor: 2}
}

// Retryable is implemented by errors that know whether a retry may help and
// can suggest a server-provided delay (HTTP 429 Retry-After).
type Retryable interface {
	Transient() bool
	RetryDelay() time.Duration
}

// Retry runs fn up to cfg.Attempts times, sleeping between attempts with
// jittered exponential backoff. A non-transient error aborts immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	delay := cfg.Base
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if r, ok := err.(Retryable); ok {
			if !r.Transient() {
				return zero, err
			}
			if d := r.RetryDelay(); d > 0 {
				delay = d
			}
		}
		if attempt == cfg.Attempts {
			break
		}

		// ±25% jitter
		jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
	}
	return zero, lastErr
}
