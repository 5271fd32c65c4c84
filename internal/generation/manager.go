package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/retry"
	"contentforge/internal/templates"
)

const (
	settleTimeout = 30 * time.Second
	pollTimeout   = 60 * time.Second
)

var (
	validate = validator.New()

	errSettled = errors.New("job already settled")
)

// ProjectReader is the read side of the project store the manager needs.
type ProjectReader interface {
	Get(ctx context.Context, id string) (*domain.ProjectRecord, error)
}

// Renderer turns a template or raw prompt into backend input.
type Renderer interface {
	Render(kind domain.JobKind, name string, project *domain.ProjectRecord, vars map[string]string) (templates.Rendered, error)
	RenderPrompt(kind domain.JobKind, prompt, aspectRatio string) (templates.Rendered, error)
}

// Input is the caller's description of the content to generate. Exactly one
// of Template and Prompt is set.
type Input struct {
	Template    string            `json:"template" validate:"required_without=Prompt,excluded_with=Prompt"`
	Prompt      string            `json:"prompt" validate:"max=4000"`
	Variables   map[string]string `json:"variables"`
	AspectRatio string            `json:"aspect_ratio"`
}

// Manager creates, dispatches, polls and cancels generation jobs.
type Manager struct {
	jobs     domain.JobRepository
	projects ProjectReader
	renderer Renderer
	backends map[domain.JobKind]Backend
	policy   retry.Policy
	timeouts map[domain.JobKind]time.Duration
	logger   infra.Logger
	now      func() time.Time
	newID    func() string

	locks keyedMutex
	polls singleflight.Group

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*Manager)

// WithPolicy sets the retry policy applied to every dispatch.
func WithPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithTimeout bounds how long a job of kind may stay unsettled.
func WithTimeout(kind domain.JobKind, d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeouts[kind] = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(jobs domain.JobRepository, projects ProjectReader, renderer Renderer, backends []Backend, logger infra.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		jobs:     jobs,
		projects: projects,
		renderer: renderer,
		backends: make(map[domain.JobKind]Backend, len(backends)),
		policy:   retry.Default(),
		timeouts: map[domain.JobKind]time.Duration{
			domain.KindText:  2 * time.Minute,
			domain.KindImage: 3 * time.Minute,
			domain.KindVideo: 15 * time.Minute,
		},
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		inflight: make(map[string]context.CancelFunc),
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, dup := m.backends[b.Kind()]; dup {
			return nil, fmt.Errorf("generation: duplicate backend for %s", b.Kind())
		}
		m.backends[b.Kind()] = b
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Submit validates the request, records a queued job and dispatches it. Text
// settles before Submit returns; image and video return running and finish
// through Poll.
func (m *Manager) Submit(ctx context.Context, projectID string, kind domain.JobKind, in Input) (*domain.GenerationJob, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown content kind %q", domain.ErrValidation, kind)
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	backend, ok := m.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no backend configured for %s", domain.ErrValidation, kind)
	}

	project, err := m.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrPreconditionFailed, err)
		}
		return nil, err
	}
	if kind.RequiresResearch() && project.Status != domain.ResearchCompleted {
		return nil, fmt.Errorf("%w: project %s research is %s, %s generation needs completed research", domain.ErrPreconditionFailed, projectID, project.Status, kind)
	}

	rendered, err := m.render(kind, project, in)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	job := &domain.GenerationJob{
		ID:        m.newID(),
		ProjectID: projectID,
		Kind:      kind,
		Status:    domain.JobQueued,
		Backend:   backend.Name(),
		Input: domain.JobInput{
			Template:    rendered.Template,
			Variables:   rendered.Variables,
			Prompt:      strings.TrimSpace(in.Prompt),
			AspectRatio: rendered.AspectRatio,
			Duration:    rendered.Duration,
			Rendered:    rendered.Prompt,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d := m.timeouts[kind]; d > 0 {
		deadline := now.Add(d)
		job.Deadline = &deadline
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	log := m.jobLogger(job)
	log.Info().Str("backend", job.Backend).Msg("generation: job queued")

	running, err := m.mutate(ctx, job.ID, func(j *domain.GenerationJob) error {
		j.Status = domain.JobRunning
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispatchCtx, cancel := m.dispatchContext(ctx, running)
	if kind == domain.KindText {
		defer cancel()
		m.dispatch(dispatchCtx, backend, running)
		return m.jobs.Get(ctx, job.ID)
	}
	snapshot := running.Clone()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.dispatch(dispatchCtx, backend, snapshot)
	}()
	return running, nil
}

// Get returns the stored job without consulting the backend.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return m.jobs.Get(ctx, jobID)
}

// Poll returns the job after asking the backend about unfinished work.
// Concurrent polls of one job share a single backend status call.
func (m *Manager) Poll(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	v, err, _ := m.polls.Do(jobID, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollTimeout)
		defer cancel()
		return m.refresh(pctx, jobID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.GenerationJob).Clone(), nil
}

// Cancel stops a queued or running job. It reports false when the job had
// already settled, including when the backend finished before the cancel
// was observed.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}
	log := m.jobLogger(job)
	backend := m.backends[job.Kind]

	if job.Handle != "" {
		if poller, ok := backend.(Poller); ok {
			progress, perr := poller.Status(ctx, job.Handle)
			if perr == nil && progress.Done && progress.Err == nil && progress.Output != nil {
				prev := job.Status
				job.Complete(*progress.Output, m.now().UTC())
				if err := m.jobs.Update(ctx, job, prev); err != nil {
					return false, err
				}
				log.Info().Msg("generation: finished before cancel")
				return false, nil
			}
		}
		if canceller, ok := backend.(Canceller); ok {
			if cerr := canceller.Cancel(ctx, job.Handle); cerr != nil {
				log.Warn().Err(cerr).Msg("generation: backend cancel failed, cancelling locally")
			}
		} else {
			log.Warn().Err(domain.ErrCancelUnsupported).Msg("generation: backend may still finish")
		}
	}
	m.abortDispatch(jobID)

	prev := job.Status
	job.Cancel(m.now().UTC())
	if err := m.jobs.Update(ctx, job, prev); err != nil {
		return false, err
	}
	log.Info().Msg("generation: job cancelled")
	return true, nil
}

// Wait blocks until every background dispatch has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) render(kind domain.JobKind, project *domain.ProjectRecord, in Input) (templates.Rendered, error) {
	if in.Template != "" {
		r, err := m.renderer.Render(kind, in.Template, project, in.Variables)
		if err != nil {
			return templates.Rendered{}, err
		}
		if in.AspectRatio != "" && kind == domain.KindImage {
			if !templates.ValidAspectRatio(in.AspectRatio) {
				return templates.Rendered{}, fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrValidation, in.AspectRatio)
			}
			r.AspectRatio = in.AspectRatio
		}
		return r, nil
	}
	return m.renderer.RenderPrompt(kind, in.Prompt, in.AspectRatio)
}

func (m *Manager) dispatchContext(ctx context.Context, job *domain.GenerationJob) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	var (
		dctx   context.Context
		cancel context.CancelFunc
	)
	if job.Deadline != nil {
		dctx, cancel = context.WithDeadline(base, *job.Deadline)
	} else {
		dctx, cancel = context.WithCancel(base)
	}
	m.mu.Lock()
	m.inflight[job.ID] = cancel
	m.mu.Unlock()
	return dctx, func() {
		m.mu.Lock()
		delete(m.inflight, job.ID)
		m.mu.Unlock()
		cancel()
	}
}

func (m *Manager) abortDispatch(jobID string) {
	m.mu.Lock()
	cancel, ok := m.inflight[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// dispatch runs Generate under the retry policy and records the outcome.
func (m *Manager) dispatch(ctx context.Context, backend Backend, job *domain.GenerationJob) {
	log := m.jobLogger(job)
	req := Request{
		JobID:       job.ID,
		ProjectID:   job.ProjectID,
		Kind:        job.Kind,
		Prompt:      job.Input.Rendered,
		AspectRatio: job.Input.AspectRatio,
		Duration:    job.Input.Duration,
	}

	policy := m.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("generation: dispatch failed, retrying")
	}
	var result Dispatch
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if _, err := m.mutate(ctx, job.ID, func(j *domain.GenerationJob) error {
			j.Attempts = attempt
			return nil
		}); err != nil {
			return retry.Permanent(err)
		}
		d, err := backend.Generate(ctx, req)
		if err != nil {
			return err
		}
		result = d
		return nil
	})

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if errors.Is(err, errSettled) {
		log.Info().Msg("generation: job settled during dispatch")
		m.releaseHandle(settleCtx, backend, result.Handle)
		return
	}
	if err == nil && result.Output == nil && result.Handle == "" {
		err = retry.Permanent(fmt.Errorf("%s returned neither output nor handle", backend.Name()))
	}
	if err == nil && result.Output == nil {
		if _, ok := backend.(Poller); !ok {
			err = retry.Permanent(fmt.Errorf("%s returned a handle but cannot be polled", backend.Name()))
		}
	}

	switch {
	case err != nil:
		reason := m.failureReason(ctx, backend, attempts, err)
		_, err = m.mutate(settleCtx, job.ID, func(j *domain.GenerationJob) error {
			j.Fail(reason, m.now().UTC())
			return nil
		})
		if err == nil {
			log.Warn().Int("attempts", attempts).Str("error", reason).Msg("generation: job failed")
		}
	case result.Output != nil:
		_, err = m.mutate(settleCtx, job.ID, func(j *domain.GenerationJob) error {
			j.Complete(*result.Output, m.now().UTC())
			return nil
		})
		if err == nil {
			log.Info().Int("attempts", attempts).Msg("generation: job completed")
		}
	default:
		_, err = m.mutate(settleCtx, job.ID, func(j *domain.GenerationJob) error {
			j.Handle = result.Handle
			return nil
		})
		if err == nil {
			log.Info().Str("handle", result.Handle).Int("attempts", attempts).Msg("generation: dispatched")
		} else {
			m.releaseHandle(settleCtx, backend, result.Handle)
		}
	}
	if err != nil && !errors.Is(err, errSettled) {
		log.Error().Err(err).Msg("generation: could not record dispatch outcome")
	}
}

func (m *Manager) failureReason(ctx context.Context, backend Backend, attempts int, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %d attempt(s): %v", domain.ErrJobTimeout, attempts, err).Error()
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v", backend.Name(), attempts, err)
}

// releaseHandle aborts backend work nobody is waiting for anymore.
func (m *Manager) releaseHandle(ctx context.Context, backend Backend, handle string) {
	if handle == "" {
		return
	}
	if canceller, ok := backend.(Canceller); ok {
		if err := canceller.Cancel(ctx, handle); err != nil {
			m.logger.Warn().Err(err).Str("handle", handle).Msg("generation: could not release orphaned backend work")
		}
	}
}

// refresh settles an unfinished job from its deadline and backend status.
func (m *Manager) refresh(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	backend := m.backends[job.Kind]
	log := m.jobLogger(job)

	if job.Deadline != nil && !m.now().Before(*job.Deadline) {
		return m.expire(ctx, backend, job)
	}
	if job.Handle == "" {
		return job, nil
	}
	poller, ok := backend.(Poller)
	if !ok {
		return job, nil
	}

	progress, err := poller.Status(ctx, job.Handle)
	if err != nil {
		if retry.IsRetryable(err) {
			log.Warn().Err(err).Msg("generation: status check failed, will retry on next poll")
			return job, nil
		}
		reason := fmt.Sprintf("%s status check failed: %v", backend.Name(), err)
		return m.settle(ctx, job.ID, func(j *domain.GenerationJob) { j.Fail(reason, m.now().UTC()) })
	}
	if !progress.Done {
		return job, nil
	}
	switch {
	case progress.Err != nil:
		reason := progress.Err.Error()
		if progress.Cancelled {
			reason = "backend cancelled the work: " + reason
		}
		log.Warn().Str("error", reason).Msg("generation: backend reported failure")
		return m.settle(ctx, job.ID, func(j *domain.GenerationJob) { j.Fail(reason, m.now().UTC()) })
	case progress.Output != nil:
		log.Info().Msg("generation: job completed")
		return m.settle(ctx, job.ID, func(j *domain.GenerationJob) { j.Complete(*progress.Output, m.now().UTC()) })
	default:
		return m.settle(ctx, job.ID, func(j *domain.GenerationJob) {
			j.Fail(backend.Name()+" finished without output", m.now().UTC())
		})
	}
}

func (m *Manager) expire(ctx context.Context, backend Backend, job *domain.GenerationJob) (*domain.GenerationJob, error) {
	limit := m.timeouts[job.Kind]
	reason := fmt.Errorf("%w: not settled within %s", domain.ErrJobTimeout, limit).Error()
	m.abortDispatch(job.ID)
	settled, err := m.settle(ctx, job.ID, func(j *domain.GenerationJob) { j.Fail(reason, m.now().UTC()) })
	if err != nil {
		return nil, err
	}
	if settled.Status == domain.JobFailed && job.Handle != "" {
		m.releaseHandle(ctx, backend, job.Handle)
	}
	log := m.jobLogger(job)
	log.Warn().Dur("timeout", limit).Msg("generation: job timed out")
	return settled, nil
}

// settle applies a terminal transition; a job that settled concurrently is
// returned as stored.
func (m *Manager) settle(ctx context.Context, jobID string, apply func(*domain.GenerationJob)) (*domain.GenerationJob, error) {
	job, err := m.mutate(ctx, jobID, func(j *domain.GenerationJob) error {
		apply(j)
		return nil
	})
	if errors.Is(err, errSettled) {
		return m.jobs.Get(ctx, jobID)
	}
	return job, err
}

// mutate applies fn to the stored job under its lock. The write is guarded
// by the status read, so a concurrent writer in another process surfaces as
// ErrConflict.
func (m *Manager) mutate(ctx context.Context, jobID string, fn func(*domain.GenerationJob) error) (*domain.GenerationJob, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, errSettled
	}
	prev := job.Status
	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = m.now().UTC()
	if err := m.jobs.Update(ctx, job, prev); err != nil {
		return nil, err
	}
	return job, nil
}

func (m *Manager) jobLogger(job *domain.GenerationJob) infra.Logger {
	return m.logger.With().
		Str("job_id", job.ID).
		Str("project_id", job.ProjectID).
		Str("kind", string(job.Kind)).
		Logger()
}
