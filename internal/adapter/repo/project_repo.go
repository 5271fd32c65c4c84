package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/sqlinline"
)

// ProjectRepositoryPG implements domain.ProjectRepository on Postgres.
type ProjectRepositoryPG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewProjectRepository(sql infra.SQLExecutor) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{sql: sql, now: time.Now}
}

func (r *ProjectRepositoryPG) Upsert(ctx context.Context, record *domain.ProjectRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: project record id is required", domain.ErrValidation)
	}
	if record.Status == "" {
		record.Status = domain.ResearchPending
	}
	if record.Status == domain.ResearchProcessing || record.Status.Terminal() {
		return fmt.Errorf("%w: a run must start pending", domain.ErrValidation)
	}
	prov, err := marshalNullable(record.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	now := r.now().UTC()
	var (
		id       string
		created  time.Time
		previous []byte
	)
	err = r.sql.QueryRow(ctx, sqlinline.QUpsertProject,
		record.ID,
		record.Identity.Name,
		record.Identity.URL,
		record.Identity.ContractAddress,
		record.RunID,
		string(record.Status),
		prov,
		now,
	).Scan(&id, &created, &previous)
	if err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("%w: project %s has a research run in progress", domain.ErrConflict, record.ID)
		}
		return fmt.Errorf("upsert project: %w", err)
	}
	if record.PreviousData, err = decodeStructured(previous); err != nil {
		return fmt.Errorf("decode previous structured data: %w", err)
	}
	record.StructuredData = nil
	record.Error = ""
	record.CreatedAt = created
	record.UpdatedAt = now
	return nil
}

func (r *ProjectRepositoryPG) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	rec, err := scanProject(r.sql.QueryRow(ctx, sqlinline.QSelectProject, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return rec, nil
}

func (r *ProjectRepositoryPG) Transition(ctx context.Context, id string, from, to domain.ResearchStatus, patch domain.TransitionPatch) (*domain.ProjectRecord, error) {
	if err := domain.ValidateTransition(from, to, patch); err != nil {
		return nil, err
	}
	var data []byte
	if to == domain.ResearchCompleted {
		var err error
		if data, err = json.Marshal(patch.StructuredData); err != nil {
			return nil, fmt.Errorf("encode structured data: %w", err)
		}
	}
	rec, err := scanProject(r.sql.QueryRow(ctx, sqlinline.QTransitionProject,
		id,
		string(from),
		string(to),
		patch.RunID,
		data,
		patch.Error,
		r.now().UTC(),
	))
	if err == nil {
		return rec, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("transition project: %w", err)
	}
	if err := r.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: project %s is not %s for this run", domain.ErrConflict, id, from)
}

func (r *ProjectRepositoryPG) SaveProvenance(ctx context.Context, id string, prov *domain.Provenance) error {
	if prov == nil {
		return fmt.Errorf("%w: provenance is required", domain.ErrValidation)
	}
	raw, err := json.Marshal(prov)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSaveProvenance, id, prov.RunID, raw, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save provenance: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if err := r.ensureExists(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: project %s moved to another run", domain.ErrConflict, id)
}

func (r *ProjectRepositoryPG) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QProjectExists, id).Scan(&exists); err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}
	return nil
}

func scanProject(row pgx.Row) (*domain.ProjectRecord, error) {
	var (
		rec      domain.ProjectRecord
		contract *string
		status   string
		data     []byte
		prov     []byte
		previous []byte
		errText  *string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Identity.Name,
		&rec.Identity.URL,
		&contract,
		&rec.RunID,
		&status,
		&data,
		&prov,
		&errText,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&previous,
	); err != nil {
		return nil, err
	}
	rec.Status = domain.ResearchStatus(status)
	if contract != nil {
		rec.Identity.ContractAddress = *contract
	}
	if errText != nil {
		rec.Error = *errText
	}
	var err error
	if rec.StructuredData, err = decodeStructured(data); err != nil {
		return nil, fmt.Errorf("decode structured data: %w", err)
	}
	if rec.PreviousData, err = decodeStructured(previous); err != nil {
		return nil, fmt.Errorf("decode previous structured data: %w", err)
	}
	if len(prov) > 0 && string(prov) != "null" {
		rec.Provenance = &domain.Provenance{}
		if err := json.Unmarshal(prov, rec.Provenance); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
	}
	return &rec, nil
}

func decodeStructured(raw []byte) (*domain.StructuredData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	out := &domain.StructuredData{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// marshalNullable encodes v, mapping a nil pointer to SQL NULL instead of
// the JSON literal null.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ domain.ProjectRepository = (*ProjectRepositoryPG)(nil)
