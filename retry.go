package kurirgo

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// BackoffStrategy selects the delay curve between retries.
type BackoffStrategy int

const (
	// ExponentialJitter multiplies the delay by the backoff factor after
	// each retry and adds uniform jitter on top.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter draws each delay uniformly from a window that
	// widens per retry.
	DecorrelatedJitter
)

// RetryCondition reports whether a failed attempt should be retried.
// attempt is the 1-based number of the attempt that just failed. The
// condition is consulted only while attempts remain; cancellation,
// debounce, throttle, circuit-open and validation failures are never
// retried regardless of the condition in use.
type RetryCondition func(err error, attempt int) bool

// DefaultRetryCondition retries network failures and HTTP 5xx responses.
func DefaultRetryCondition(err error, attempt int) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// retryWait returns the wait before retry number retryNum (1-based). A
// Retry-After hint from the failed response takes precedence over the
// computed backoff.
func (c *Client) retryWait(err error, retryNum int) time.Duration {
	if hint := retryAfterHint(err); hint > 0 {
		return hint
	}
	return c.backoff.Calculate(retryNum-1, c.retryDelay, c.maxRetryDelay, c.backoffFactor, c.jitter)
}

// retryAfterHint extracts a server-provided delay from a 429 or 503
// response attached to err. Zero means no usable hint.
func retryAfterHint(err error) time.Duration {
	var e *Error
	if !errors.As(err, &e) || e.Result == nil {
		return 0
	}
	if e.StatusCode != http.StatusTooManyRequests && e.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	return parseRetryAfter(e.Result.Header().Get("Retry-After"))
}

// parseRetryAfter parses a Retry-After header value in either delay-seconds
// or HTTP-date form. The result is capped at one hour; unparseable or
// non-positive values yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
	}

	return 0
}
