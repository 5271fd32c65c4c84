package research

import (
	"context"
	"errors"
	"testing"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

func testQuery(t *testing.T) Query {
	t.Helper()
	q, err := BuildQuery(domain.Identity{URL: "https://example.io"}, domain.DepthDeep)
	if err != nil {
		t.Fatalf("BuildQuery error: %v", err)
	}
	return q
}

func TestCollectSavesProvenanceBeforeReturning(t *testing.T) {
	search := &stubSearch{}
	saver := &recordingSaver{}
	c := NewCollector(search, saver, noSleepPolicy(3), nop())
	q := testQuery(t)

	raw, err := c.Collect(context.Background(), "run-1", q)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if raw.Provider != "stub-search" || raw.Query != q.Text || raw.Depth != domain.DepthDeep {
		t.Fatalf("raw results not stamped: %+v", raw)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("provenance saves = %d, want 1", len(saver.saved))
	}
	prov := saver.saved[0]
	if prov.RunID != "run-1" || prov.Answer != raw.Answer || len(prov.Sources) != 1 || prov.CollectedAt.IsZero() {
		t.Fatalf("provenance = %+v", prov)
	}
}

func TestCollectRetriesTransientFailures(t *testing.T) {
	search := &stubSearch{errs: []error{retry.Transient(errors.New("429")), retry.Transient(errors.New("502"))}}
	c := NewCollector(search, &recordingSaver{}, noSleepPolicy(3), nop())
	if _, err := c.Collect(context.Background(), "run-1", testQuery(t)); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if got := search.calls.Load(); got != 3 {
		t.Fatalf("search calls = %d, want 3", got)
	}
}

func TestCollectExhaustionIsUpstreamUnavailable(t *testing.T) {
	boom := retry.Transient(errors.New("503"))
	search := &stubSearch{errs: []error{boom, boom, boom, boom}}
	saver := &recordingSaver{}
	c := NewCollector(search, saver, noSleepPolicy(3), nop())
	_, err := c.Collect(context.Background(), "run-1", testQuery(t))
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if got := search.calls.Load(); got != 3 {
		t.Fatalf("search calls = %d, want 3", got)
	}
	if len(saver.saved) != 0 {
		t.Fatalf("provenance saved for a failed collection")
	}
}

func TestCollectPermanentFailureIsNotRetried(t *testing.T) {
	search := &stubSearch{errs: []error{retry.Permanent(errors.New("401 unauthorized"))}}
	c := NewCollector(search, &recordingSaver{}, noSleepPolicy(3), nop())
	_, err := c.Collect(context.Background(), "run-1", testQuery(t))
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if got := search.calls.Load(); got != 1 {
		t.Fatalf("search calls = %d, want 1", got)
	}
}

func TestCollectProvenanceConflictSurfaces(t *testing.T) {
	saver := &recordingSaver{err: domain.ErrConflict}
	c := NewCollector(&stubSearch{}, saver, noSleepPolicy(1), nop())
	_, err := c.Collect(context.Background(), "stale", testQuery(t))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}
