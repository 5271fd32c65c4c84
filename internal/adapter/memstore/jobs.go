package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"contentforge/internal/domain"
)

// JobStore is an in-memory domain.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.GenerationJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.GenerationJob)}
}

func (s *JobStore) Create(ctx context.Context, job *domain.GenerationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job.Clone(), nil
}

func (s *JobStore) Update(ctx context.Context, job *domain.GenerationJob, expect domain.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, job.ID)
	}
	if current.Status != expect {
		return fmt.Errorf("%w: job %s is %s, not %s", domain.ErrConflict, job.ID, current.Status, expect)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.GenerationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []domain.GenerationJob
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, *job.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.JobRepository = (*JobStore)(nil)
