package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/screenhire/screener/internal/domain"
)

const jobColumns = `id, status, COALESCE(error,''), cv_id, project_id, job_title, COALESCE(vacancy_id,''), idempotency_key, created_at, updated_at, started_at, finished_at`

// JobRepo persists and loads evaluation jobs.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Create inserts a new queued job and returns its id.
func (r *JobRepo) Create(ctx context.Context, j domain.Job) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	now := time.Now().UTC()
	q := `INSERT INTO jobs (id, status, error, cv_id, project_id, job_title, vacancy_id, idempotency_key, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, j.ID, j.Status, j.Error, j.CVID, j.ProjectID, j.JobTitle, j.VacancyID, j.IdemKey, now, now)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return j.ID, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx context.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// Claim transitions a queued job to processing. The single UPDATE with the
// status guard makes the claim atomic: exactly one caller wins.
func (r *JobRepo) Claim(ctx context.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Claim")
	defer span.End()
	q := `UPDATE jobs SET status=$2, started_at=now(), updated_at=now() WHERE id=$1 AND status=$3`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobProcessing, domain.JobQueued)
	if err != nil {
		return false, fmt.Errorf("op=job.claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted finalizes a processing job as completed. A job already
// moved to a terminal state (the sweeper may have force-failed it) is left
// untouched; zero rows affected is not an error.
func (r *JobRepo) MarkCompleted(ctx context.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkCompleted")
	defer span.End()
	q := `UPDATE jobs SET status=$2, error='', finished_at=now(), updated_at=now() WHERE id=$1 AND status=$3`
	if _, err := r.Pool.Exec(ctx, q, id, domain.JobCompleted, domain.JobProcessing); err != nil {
		return fmt.Errorf("op=job.mark_completed: %w", err)
	}
	return nil
}

// MarkFailed finalizes a job as failed with the given message. Queued jobs
// can fail too (enqueue errors), but a terminal status never changes; zero
// rows affected is not an error.
func (r *JobRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkFailed")
	defer span.End()
	q := `UPDATE jobs SET status=$2, error=$3, finished_at=now(), updated_at=now() WHERE id=$1 AND status NOT IN ($4,$5)`
	if _, err := r.Pool.Exec(ctx, q, id, domain.JobFailed, errMsg, domain.JobCompleted, domain.JobFailed); err != nil {
		return fmt.Errorf("op=job.mark_failed: %w", err)
	}
	return nil
}

// FindByIdempotencyKey loads a job by idempotency key.
func (r *JobRepo) FindByIdempotencyKey(ctx context.Context, key string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindByIdempotencyKey")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE idempotency_key=$1 LIMIT 1`, key)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.find_idem: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.find_idem: %w", err)
	}
	return j, nil
}

// ListStuckProcessing returns processing jobs that started before olderThan,
// for the watchdog to force-fail.
func (r *JobRepo) ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListStuckProcessing")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE status=$1 AND started_at < $2 ORDER BY started_at ASC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, domain.JobProcessing, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.list_stuck: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_stuck: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_stuck: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.Status, &j.Error, &j.CVID, &j.ProjectID, &j.JobTitle, &j.VacancyID,
		&j.IdemKey, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt)
	return j, err
}
