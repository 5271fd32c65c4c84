package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error carries the explicit retryable flag every backend failure must declare.
type Error struct {
	Err       error
	Retryable bool
	// RetryAfter is a server hint; zero means use the policy backoff.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "retry: unknown error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Retryable: true}
}

// Permanent marks err as a failure that must not consume retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Retryable: false}
}

// StatusCoder is implemented by errors that know the HTTP status they came from.
type StatusCoder interface {
	HTTPStatusCode() int
}

// HTTPError is returned by provider clients for non-2xx responses.
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// FromResponse classifies a failed HTTP response into a flagged error.
func FromResponse(provider string, resp *http.Response, message string) error {
	httpErr := &HTTPError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(message),
		RetryAfter: RetryAfterDuration(resp, 0, time.Minute),
	}
	return &Error{
		Err:        httpErr,
		Retryable:  IsRetryableHTTPStatus(resp.StatusCode),
		RetryAfter: httpErr.RetryAfter,
	}
}

func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryable honours an explicit flag first and otherwise treats timeouts,
// temporary network failures and retryable HTTP statuses as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var flagged *Error
	if errors.As(err, &flagged) {
		return flagged.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryAfterDuration reads a Retry-After header in seconds, capped at max.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func retryAfterHint(err error) time.Duration {
	var flagged *Error
	if errors.As(err, &flagged) {
		return flagged.RetryAfter
	}
	return 0
}
