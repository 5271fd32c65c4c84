package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
)

const defaultRunTimeout = 5 * time.Minute

// Run identifies one research run of a project.
type Run struct {
	ProjectID string                `json:"project_id"`
	RunID     string                `json:"run_id"`
	Status    domain.ResearchStatus `json:"research_status"`
}

// Status is the caller-facing view of a project's research.
type Status struct {
	ProjectID      string                 `json:"project_id"`
	RunID          string                 `json:"run_id"`
	Status         domain.ResearchStatus  `json:"research_status"`
	StructuredData *domain.StructuredData `json:"structured_data"`
	PreviousData   *domain.StructuredData `json:"previous_structured_data,omitempty"`
	Error          string                 `json:"error,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Service drives research runs from identity to structured record.
type Service struct {
	projects   domain.ProjectRepository
	collector  *Collector
	structurer *Structurer
	logger     infra.Logger
	runTimeout time.Duration
	newRunID   func() string

	wg sync.WaitGroup
}

type ServiceOption func(*Service)

// WithRunTimeout bounds every background run.
func WithRunTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func withRunIDs(fn func() string) ServiceOption {
	return func(s *Service) { s.newRunID = fn }
}

func NewService(projects domain.ProjectRepository, collector *Collector, structurer *Structurer, logger infra.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		projects:   projects,
		collector:  collector,
		structurer: structurer,
		logger:     logger,
		runTimeout: defaultRunTimeout,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResearch claims a new run for identity and executes it in the
// background. The returned run is already processing.
func (s *Service) StartResearch(ctx context.Context, identity domain.Identity, depth domain.Depth) (Run, error) {
	run, q, err := s.claim(ctx, identity, depth)
	if err != nil {
		return Run{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		s.execute(runCtx, run.RunID, q, nil)
	}()
	return run, nil
}

// RunResearch is the synchronous form of StartResearch. It returns the
// settled status; a failed run is reported in the status, not as an error.
func (s *Service) RunResearch(ctx context.Context, identity domain.Identity, depth domain.Depth) (Status, error) {
	run, q, err := s.claim(ctx, identity, depth)
	if err != nil {
		return Status{}, err
	}
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	s.execute(runCtx, run.RunID, q, nil)
	return s.GetResearchStatus(ctx, run.ProjectID)
}

// GetResearchStatus reports the current status and, when completed, the data.
func (s *Service) GetResearchStatus(ctx context.Context, projectID string) (Status, error) {
	rec, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		ProjectID:      rec.ID,
		RunID:          rec.RunID,
		Status:         rec.Status,
		StructuredData: rec.StructuredData,
		PreviousData:   rec.PreviousData,
		Error:          rec.Error,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

// Project returns the full record including provenance.
func (s *Service) Project(ctx context.Context, projectID string) (*domain.ProjectRecord, error) {
	return s.projects.Get(ctx, projectID)
}

// Reprocess re-runs structuring of a failed project from its retained
// provenance, as a new run, without searching again.
func (s *Service) Reprocess(ctx context.Context, projectID string) (Run, error) {
	rec, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return Run{}, err
	}
	if rec.Status != domain.ResearchFailed {
		return Run{}, fmt.Errorf("%w: project %s is %s, only failed research can be reprocessed", domain.ErrPreconditionFailed, projectID, rec.Status)
	}
	if rec.Provenance == nil {
		return Run{}, fmt.Errorf("%w: project %s has no retained provenance", domain.ErrPreconditionFailed, projectID)
	}
	raw := rec.Provenance.RawResults()
	q := Query{ProjectID: rec.ID, Text: rec.Provenance.Query, Depth: rec.Provenance.Depth}

	runID := s.newRunID()
	next := &domain.ProjectRecord{ID: rec.ID, Identity: rec.Identity, RunID: runID, Provenance: rec.Provenance}
	if err := s.projects.Upsert(ctx, next); err != nil {
		return Run{}, err
	}
	if _, err := s.projects.Transition(ctx, rec.ID, domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: runID}); err != nil {
		return Run{}, err
	}
	prov := rec.Provenance.Clone()
	prov.RunID = runID
	if err := s.projects.SaveProvenance(ctx, rec.ID, prov); err != nil {
		return Run{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		s.execute(runCtx, runID, q, raw)
	}()
	return Run{ProjectID: rec.ID, RunID: runID, Status: domain.ResearchProcessing}, nil
}

// Wait blocks until every background run has settled.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) claim(ctx context.Context, identity domain.Identity, depth domain.Depth) (Run, Query, error) {
	q, err := BuildQuery(identity, depth)
	if err != nil {
		return Run{}, Query{}, err
	}
	identity, _ = NormalizeIdentity(identity)
	runID := s.newRunID()

	record := &domain.ProjectRecord{ID: q.ProjectID, Identity: identity, RunID: runID}
	if err := s.projects.Upsert(ctx, record); err != nil {
		return Run{}, Query{}, err
	}
	// Only one of several concurrent starts gets past this transition.
	if _, err := s.projects.Transition(ctx, q.ProjectID, domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: runID}); err != nil {
		return Run{}, Query{}, err
	}
	s.logger.Info().Str("project_id", q.ProjectID).Str("run_id", runID).Str("depth", string(depth)).Msg("research: run started")
	return Run{ProjectID: q.ProjectID, RunID: runID, Status: domain.ResearchProcessing}, q, nil
}

// execute collects (unless raw is given) and structures, then settles the run.
func (s *Service) execute(ctx context.Context, runID string, q Query, raw *domain.RawResults) {
	log := s.logger.With().Str("project_id", q.ProjectID).Str("run_id", runID).Logger()
	started := time.Now()

	data, err := s.collectAndStructure(ctx, runID, q, raw)
	// Settling must survive an expired run context.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err != nil {
		reason := err.Error()
		if _, terr := s.projects.Transition(settleCtx, q.ProjectID, domain.ResearchProcessing, domain.ResearchFailed, domain.TransitionPatch{RunID: runID, Error: reason}); terr != nil {
			log.Error().Err(terr).Msg("research: could not record failure")
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("research: run failed")
		return
	}
	if _, terr := s.projects.Transition(settleCtx, q.ProjectID, domain.ResearchProcessing, domain.ResearchCompleted, domain.TransitionPatch{RunID: runID, StructuredData: data}); terr != nil {
		log.Error().Err(terr).Msg("research: could not record completion")
		return
	}
	log.Info().Dur("elapsed", time.Since(started)).Int("missing", len(data.Missing)).Msg("research: run completed")
}

func (s *Service) collectAndStructure(ctx context.Context, runID string, q Query, raw *domain.RawResults) (*domain.StructuredData, error) {
	if raw == nil {
		collected, err := s.collector.Collect(ctx, runID, q)
		if err != nil {
			return nil, s.describe(ctx, err)
		}
		raw = collected
	}
	data, err := s.structurer.Structure(ctx, raw)
	if err != nil {
		return nil, s.describe(ctx, err)
	}
	return data, nil
}

func (s *Service) describe(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: research run timed out: %v", domain.ErrUpstreamUnavailable, err)
	}
	return err
}
