package contentapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDocumentNotFound is returned by GetDocument when the document no
	// longer exists remotely.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("content api circuit breaker open")
)

// RateLimitedError is returned when the remote API answers 429.
type RateLimitedError struct {
	// RetryAfter is the cooldown advertised by the API, zero when absent.
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("content api rate limited, retry after %s", e.RetryAfter)
	}
	return "content api rate limited"
}

// HasRetryAfter reports whether the API advertised a cooldown.
func (e *RateLimitedError) HasRetryAfter() bool {
	return e.RetryAfter > 0
}

// HTTPError represents a non-2xx answer other than 429
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// IsRateLimited reports whether err carries a 429 from the remote API.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// isClientError reports errors caused by the request rather than by the
// remote service being unhealthy.
func isClientError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) || errors.Is(err, ErrDocumentNotFound) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}
	return false
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := ts.Sub(now); delta > 0 {
			return delta
		}
	}
	return 0
}
