// Package geminiapi holds helpers shared by the clients built on the genai SDK.
package geminiapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"contentforge/internal/retry"
)

var retryDelayPattern = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ClassifyError maps SDK failures onto the retry flags. Quota errors with a
// zero limit are permanent.
func ClassifyError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "limit: 0") {
		return retry.Permanent(fmt.Errorf("gemini quota exhausted: %w", err))
	}
	code := 0
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	var hint time.Duration
	if m := retryDelayPattern.FindStringSubmatch(msg); len(m) == 2 {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			hint = time.Duration(secs * float64(time.Second))
		}
	}
	switch {
	case code != 0:
		return &retry.Error{Err: err, Retryable: retry.IsRetryableHTTPStatus(code), RetryAfter: hint}
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, strconv.Itoa(http.StatusTooManyRequests)):
		return &retry.Error{Err: err, Retryable: true, RetryAfter: hint}
	default:
		return &retry.Error{Err: err, Retryable: retry.IsRetryable(err), RetryAfter: hint}
	}
}

// HTTPOptions splits a REST base such as
// https://generativelanguage.googleapis.com/v1beta into the SDK's host and
// API version.
func HTTPOptions(baseURL string) genai.HTTPOptions {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return genai.HTTPOptions{}
	}
	opts := genai.HTTPOptions{}
	if idx := strings.LastIndex(base, "/"); idx > len("https://") {
		if v := base[idx+1:]; strings.HasPrefix(v, "v1") {
			opts.APIVersion = v
			base = base[:idx]
		}
	}
	opts.BaseURL = base + "/"
	return opts
}
