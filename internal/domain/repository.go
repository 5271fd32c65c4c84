package domain

import "context"

// ProjectRepository owns the ProjectRecord lifecycle.
type ProjectRepository interface {
	// Upsert inserts the record or replaces a non-processing one as a new run.
	// It fails with ErrConflict while the stored record is processing.
	Upsert(ctx context.Context, record *ProjectRecord) error
	Get(ctx context.Context, id string) (*ProjectRecord, error)
	// Transition is the only status mutator. It fails with ErrConflict when
	// the stored status is not from.
	Transition(ctx context.Context, id string, from, to ResearchStatus, patch TransitionPatch) (*ProjectRecord, error)
	SaveProvenance(ctx context.Context, id string, prov *Provenance) error
}

// JobRepository persists generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	Get(ctx context.Context, id string) (*GenerationJob, error)
	// Update writes job when the stored status equals expect, else ErrConflict.
	Update(ctx context.Context, job *GenerationJob, expect JobStatus) error
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]GenerationJob, error)
}
