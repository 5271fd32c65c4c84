package research

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/retry"
)

const validSchemaJSON = `{
  "summary": "Example is a rollup.",
  "description": "A settlement layer.",
  "key_features": ["fast", "cheap"],
  "tokenomics": {"total_supply": "1B"},
  "technology": "zk rollup",
  "team": ["Ada"],
  "roadmap": ["Q1 mainnet", "Q2 bridge"],
  "social_links": {"twitter": "https://x.com/example"},
  "competitors": ["Other"]
}`

func noSleepPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

type stubSearch struct {
	calls atomic.Int32
	gate  chan struct{}
	errs  []error
	res   *domain.RawResults
	mu    sync.Mutex
}

func (s *stubSearch) Name() string { return "stub-search" }

func (s *stubSearch) Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error) {
	n := int(s.calls.Add(1))
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return nil, s.errs[n-1]
	}
	if s.res != nil {
		out := *s.res
		return &out, nil
	}
	return &domain.RawResults{
		Answer:  "Example is a token.",
		Results: []domain.Source{{URL: "https://x", Snippet: "tokenomics: 1B supply"}},
	}, nil
}

type stubLLM struct {
	calls   atomic.Int32
	replies []string
	errs    []error
	prompts []string
	mu      sync.Mutex
}

func (s *stubLLM) Name() string { return "stub-llm" }

func (s *stubLLM) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return "", s.errs[n-1]
	}
	if len(s.replies) == 0 {
		return validSchemaJSON, nil
	}
	if n > len(s.replies) {
		return s.replies[len(s.replies)-1], nil
	}
	return s.replies[n-1], nil
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []*domain.Provenance
	err   error
}

func (r *recordingSaver) SaveProvenance(_ context.Context, _ string, prov *domain.Provenance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, prov.Clone())
	return nil
}

func nop() infra.Logger { return infra.NopLogger() }
