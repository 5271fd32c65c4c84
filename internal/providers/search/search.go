// Package search implements the web research providers behind the research
// collector.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

const (
	defaultMaxResults = 10
	defaultTimeout    = 90 * time.Second
	maxErrorBody      = 2048
)

// Provider is the search capability consumed by research.Collector.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error)
}

// Options configures an HTTP search provider.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	DeepModel  string
	MaxResults int
	// RatePerSecond throttles outgoing calls; zero disables throttling.
	RatePerSecond float64
	HTTPClient    *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (o Options) limiter() *rate.Limiter {
	if o.RatePerSecond <= 0 {
		return nil
	}
	burst := int(o.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RatePerSecond), burst)
}

func (o Options) maxResults() int {
	if o.MaxResults > 0 {
		return o.MaxResults
	}
	return defaultMaxResults
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return retry.Transient(fmt.Errorf("%s request: %w", provider, err))
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return retry.FromResponse(provider, resp, string(body))
}

// dedupeSources drops empty and repeated urls, keeping first-seen order.
func dedupeSources(in []domain.Source) []domain.Source {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Source, 0, len(in))
	for _, s := range in {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" {
			continue
		}
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
