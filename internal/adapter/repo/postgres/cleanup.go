package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanupService removes terminal jobs, their results and orphaned documents
// past the retention window.
type CleanupService struct {
	Pool          *pgxpool.Pool
	RetentionDays int
}

// NewCleanupService creates a cleanup service. Non-positive retention
// defaults to 90 days.
func NewCleanupService(pool *pgxpool.Pool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData deletes data older than the retention period in one
// transaction. Only terminal jobs are touched.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=cleanup: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	resTag, err := tx.Exec(ctx, `
		DELETE FROM results
		WHERE job_id IN (
			SELECT id FROM jobs
			WHERE finished_at IS NOT NULL AND finished_at < $1
		)`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: delete results: %w", err)
	}

	jobTag, err := tx.Exec(ctx, `
		DELETE FROM jobs
		WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: delete jobs: %w", err)
	}

	docTag, err := tx.Exec(ctx, `
		DELETE FROM documents d
		WHERE d.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM jobs j WHERE j.cv_id = d.id OR j.project_id = d.id)`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup: delete documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup: commit: %w", err)
	}
	slog.Info("retention cleanup done",
		slog.Int64("results_deleted", resTag.RowsAffected()),
		slog.Int64("jobs_deleted", jobTag.RowsAffected()),
		slog.Int64("documents_deleted", docTag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}

// Run executes cleanup on the given interval until the context ends.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("retention cleanup failed", slog.Any("error", err))
			}
		}
	}
}
