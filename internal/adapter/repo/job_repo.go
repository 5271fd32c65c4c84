package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on Postgres.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("encode job input: %w", err)
	}
	output, err := marshalNullable(job.Output)
	if err != nil {
		return fmt.Errorf("encode job output: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.ProjectID,
		string(job.Kind),
		string(job.Status),
		job.Backend,
		input,
		output,
		job.Handle,
		job.Attempts,
		job.Error,
		job.Deadline,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	if err := checkJobID(id); err != nil {
		return nil, err
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.GenerationJob, expect domain.JobStatus) error {
	if err := checkJobID(job.ID); err != nil {
		return err
	}
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("encode job input: %w", err)
	}
	output, err := marshalNullable(job.Output)
	if err != nil {
		return fmt.Errorf("encode job output: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJob,
		job.ID,
		string(expect),
		string(job.Status),
		job.Backend,
		input,
		output,
		job.Handle,
		job.Attempts,
		job.Error,
		job.Deadline,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QJobExists, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, job.ID)
	}
	return fmt.Errorf("%w: job %s is no longer %s", domain.ErrConflict, job.ID, expect)
}

func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByStatus, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// checkJobID rejects ids the uuid column could never hold, so they read as
// missing instead of failing the cast.
func checkJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job    domain.GenerationJob
		kind   string
		status string
		input  []byte
		output []byte
		handle *string
		dl     *time.Time
		done   *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&kind,
		&status,
		&job.Backend,
		&input,
		&output,
		&handle,
		&job.Attempts,
		&job.Error,
		&dl,
		&job.CreatedAt,
		&job.UpdatedAt,
		&done,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Deadline = dl
	job.CompletedAt = done
	if handle != nil {
		job.Handle = *handle
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("decode job input: %w", err)
		}
	}
	if len(output) > 0 && string(output) != "null" {
		job.Output = &domain.JobOutput{}
		if err := json.Unmarshal(output, job.Output); err != nil {
			return nil, fmt.Errorf("decode job output: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
