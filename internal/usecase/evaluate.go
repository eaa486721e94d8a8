package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/observability"
)

// EvaluateInput is a validated submit request.
type EvaluateInput struct {
	CVID      string `validate:"required"`
	ProjectID string `validate:"required"`
	JobTitle  string `validate:"required,max=200"`
	VacancyID string `validate:"max=200"`
	IdemKey   string `validate:"max=200"`
}

// EvaluateService creates queued jobs and enqueues their evaluation tasks.
type EvaluateService struct {
	Jobs     domain.JobRepository
	Docs     domain.DocumentRepository
	Queue    domain.Queue
	validate *validator.Validate
}

// NewEvaluateService constructs an EvaluateService.
func NewEvaluateService(jobs domain.JobRepository, docs domain.DocumentRepository, q domain.Queue) EvaluateService {
	return EvaluateService{Jobs: jobs, Docs: docs, Queue: q, validate: validator.New()}
}

// Enqueue validates the input, applies idempotency, creates a queued job and
// publishes the evaluation task. If publishing fails the job is marked failed
// so it never sits in queued forever.
func (s EvaluateService) Enqueue(ctx context.Context, in EvaluateInput) (string, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	// both documents must exist before a job is created
	if _, err := s.Docs.Get(ctx, in.CVID); err != nil {
		return "", fmt.Errorf("cv_id %s: %w", in.CVID, err)
	}
	if _, err := s.Docs.Get(ctx, in.ProjectID); err != nil {
		return "", fmt.Errorf("project_id %s: %w", in.ProjectID, err)
	}

	if in.IdemKey != "" {
		j, err := s.Jobs.FindByIdempotencyKey(ctx, in.IdemKey)
		switch {
		case err == nil:
			slog.Info("idempotent submit, returning existing job",
				slog.String("job_id", j.ID),
				slog.String("idempotency_key", in.IdemKey))
			return j.ID, nil
		case !errors.Is(err, domain.ErrNotFound):
			return "", err
		}
	}

	now := time.Now().UTC()
	j := domain.Job{
		ID:        ulid.Make().String(),
		Status:    domain.JobQueued,
		CVID:      in.CVID,
		ProjectID: in.ProjectID,
		JobTitle:  in.JobTitle,
		VacancyID: in.VacancyID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.IdemKey != "" {
		j.IdemKey = &in.IdemKey
	}
	jobID, err := s.Jobs.Create(ctx, j)
	if err != nil {
		return "", err
	}

	payload := domain.EvaluateTaskPayload{
		JobID:     jobID,
		CVID:      in.CVID,
		ProjectID: in.ProjectID,
		JobTitle:  in.JobTitle,
		VacancyID: in.VacancyID,
		RequestID: observability.RequestIDFromContext(ctx),
	}
	if _, err := s.Queue.EnqueueEvaluate(ctx, payload); err != nil {
		if markErr := s.Jobs.MarkFailed(ctx, jobID, "enqueue failed"); markErr != nil {
			slog.Error("failed to mark job failed after enqueue error",
				slog.String("job_id", jobID),
				slog.Any("error", markErr))
		}
		return "", fmt.Errorf("op=evaluate.Enqueue job_id=%s: %w", jobID, err)
	}
	return jobID, nil
}
