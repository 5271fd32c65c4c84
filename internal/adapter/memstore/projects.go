// Package memstore holds process-local repositories used when no database is
// configured and in tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contentforge/internal/domain"
)

// ProjectStore is an in-memory domain.ProjectRepository. Reads share the lock
// so any number of concurrent readers proceed in parallel.
type ProjectStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProjectRecord
	now     func() time.Time
}

func NewProjectStore() *ProjectStore {
	return &ProjectStore{records: make(map[string]*domain.ProjectRecord), now: time.Now}
}

func (s *ProjectStore) Upsert(ctx context.Context, record *domain.ProjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: project record id is required", domain.ErrValidation)
	}
	if record.Status == "" {
		record.Status = domain.ResearchPending
	}
	if record.Status == domain.ResearchProcessing || record.Status.Terminal() {
		return fmt.Errorf("%w: a run must start pending", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	created := now
	var previous *domain.StructuredData
	if existing, ok := s.records[record.ID]; ok {
		if existing.Status == domain.ResearchProcessing {
			return fmt.Errorf("%w: project %s has a research run in progress", domain.ErrConflict, record.ID)
		}
		created = existing.CreatedAt
		previous = existing.LastGoodData().Clone()
	}
	record.StructuredData = nil
	record.PreviousData = previous
	record.Error = ""
	record.CreatedAt = created
	record.UpdatedAt = now
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (s *ProjectStore) Transition(ctx context.Context, id string, from, to domain.ResearchStatus, patch domain.TransitionPatch) (*domain.ProjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(from, to, patch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}
	if rec.Status != from {
		return nil, fmt.Errorf("%w: project %s is %s, not %s", domain.ErrConflict, id, rec.Status, from)
	}
	if to != domain.ResearchProcessing && patch.RunID != "" && rec.RunID != patch.RunID {
		return nil, fmt.Errorf("%w: project %s moved to run %s", domain.ErrConflict, id, rec.RunID)
	}
	rec.ApplyTransition(to, patch, s.now().UTC())
	return rec.Clone(), nil
}

func (s *ProjectStore) SaveProvenance(ctx context.Context, id string, prov *domain.Provenance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if prov == nil {
		return fmt.Errorf("%w: provenance is required", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}
	if prov.RunID != "" && rec.RunID != prov.RunID {
		return fmt.Errorf("%w: project %s moved to run %s", domain.ErrConflict, id, rec.RunID)
	}
	rec.Provenance = prov.Clone()
	rec.UpdatedAt = s.now().UTC()
	return nil
}

var _ domain.ProjectRepository = (*ProjectStore)(nil)
