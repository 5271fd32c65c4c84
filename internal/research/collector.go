package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/retry"
)

// SearchProvider is the research capability a collector delegates to.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error)
}

// ProvenanceSaver persists collected evidence for a project run.
type ProvenanceSaver interface {
	SaveProvenance(ctx context.Context, id string, prov *domain.Provenance) error
}

// Collector runs one search provider under the retry policy and records what
// it found before handing results on.
type Collector struct {
	provider SearchProvider
	store    ProvenanceSaver
	policy   retry.Policy
	logger   infra.Logger
	now      func() time.Time
}

func NewCollector(provider SearchProvider, store ProvenanceSaver, policy retry.Policy, logger infra.Logger) *Collector {
	return &Collector{provider: provider, store: store, policy: policy, logger: logger, now: time.Now}
}

// Collect searches for q and saves the raw payload as provenance of runID.
func (c *Collector) Collect(ctx context.Context, runID string, q Query) (*domain.RawResults, error) {
	log := c.logger.With().
		Str("project_id", q.ProjectID).
		Str("run_id", runID).
		Str("provider", c.provider.Name()).
		Logger()

	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("research: search failed, retrying")
	}

	var raw *domain.RawResults
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		res, err := c.provider.Search(ctx, q.Text, q.Depth)
		if err != nil {
			return err
		}
		raw = res
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Error().Err(err).Int("attempts", attempts).Msg("research: search unavailable")
		return nil, fmt.Errorf("%w: %s search failed after %d attempt(s): %v", domain.ErrUpstreamUnavailable, c.provider.Name(), attempts, err)
	}
	if raw == nil {
		raw = &domain.RawResults{}
	}
	raw.Provider = c.provider.Name()
	raw.Query = q.Text
	raw.Depth = q.Depth

	prov := &domain.Provenance{
		RunID:       runID,
		Provider:    raw.Provider,
		Query:       raw.Query,
		Depth:       raw.Depth,
		Answer:      raw.Answer,
		Sources:     raw.Results,
		Raw:         raw.Raw,
		CollectedAt: c.now().UTC(),
	}
	if err := c.store.SaveProvenance(ctx, q.ProjectID, prov); err != nil {
		return nil, fmt.Errorf("save provenance: %w", err)
	}
	log.Info().Int("sources", len(raw.Results)).Int("attempts", attempts).Msg("research: collected")
	return raw, nil
}
