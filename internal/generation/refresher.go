package generation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultRefreshBatch    = 25
	refreshConcurrency     = 4
)

// Refresher drives unsettled jobs forward so their completion does not
// depend on a client polling them.
type Refresher struct {
	manager  *Manager
	jobs     domain.JobRepository
	logger   infra.Logger
	interval time.Duration
	batch    int
}

func NewRefresher(manager *Manager, jobs domain.JobRepository, logger infra.Logger, interval time.Duration, batch int) *Refresher {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if batch <= 0 {
		batch = defaultRefreshBatch
	}
	return &Refresher{manager: manager, jobs: jobs, logger: logger, interval: interval, batch: batch}
}

// Run refreshes on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("refresher: started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("refresher: stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RefreshOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Msg("refresher: pass failed")
			}
		}
	}
}

// RefreshOnce polls a batch of queued and running jobs and returns how many
// settled during the pass.
func (r *Refresher) RefreshOnce(ctx context.Context) (int, error) {
	var pending []domain.GenerationJob
	for _, status := range []domain.JobStatus{domain.JobRunning, domain.JobQueued} {
		jobs, err := r.jobs.ListByStatus(ctx, status, r.batch)
		if err != nil {
			return 0, err
		}
		pending = append(pending, jobs...)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	settled := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i := range pending {
		id := pending[i].ID
		g.Go(func() error {
			job, err := r.manager.Poll(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				r.logger.Warn().Err(err).Str("job_id", id).Msg("refresher: poll failed")
				return nil
			}
			settled[i] = job.Status.Terminal()
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range settled {
		if ok {
			n++
		}
	}
	if n > 0 {
		r.logger.Info().Int("settled", n).Int("checked", len(pending)).Msg("refresher: pass complete")
	}
	return n, err
}
