package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError carries a non-2xx provider response so callers can inspect the
// status (retry policy) and the raw body (context-overflow detection).
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider HTTP %d: %s", e.Status, e.Body)
}

// Transient reports whether the status is worth retrying: 5xx and 429.
func (e *HTTPError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// RetryDelay returns the server-suggested delay from Retry-After, if any.
func (e *HTTPError) RetryDelay() time.Duration { return e.RetryAfter }

// ParseRetryAfter parses a Retry-After header value (delta-seconds or
// HTTP-date). Zero means no usable value.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
