package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/screenhire/screener/internal/domain"
)

const sweepBatchSize = 100

// StuckJobSweeper fails jobs that stayed in processing past the maximum age,
// covering worker crashes between claim and terminal transition.
type StuckJobSweeper struct {
	jobs     domain.JobRepository
	maxAge   time.Duration
	interval time.Duration
}

// NewStuckJobSweeper constructs a sweeper. Zero durations fall back to
// sensible defaults.
func NewStuckJobSweeper(jobs domain.JobRepository, maxAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxAge: maxAge, interval: interval}
}

// Run sweeps immediately and then on every tick until the context ends.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.maxAge)
	failed := 0
	for {
		jobs, err := s.jobs.ListStuckProcessing(ctx, cutoff, sweepBatchSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck job sweep list failed", slog.Any("error", err))
			return
		}
		if len(jobs) == 0 {
			break
		}
		marked := 0
		for _, j := range jobs {
			msg := fmt.Sprintf("job timed out: processing exceeded %v", s.maxAge)
			if err := s.jobs.MarkFailed(ctx, j.ID, msg); err != nil {
				slog.Error("stuck job sweep mark failed",
					slog.String("job_id", j.ID),
					slog.Any("error", err))
				continue
			}
			marked++
		}
		failed += marked
		// a pass that marks nothing cannot make progress
		if len(jobs) < sweepBatchSize || marked == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("jobs.marked_failed", failed))
	if failed > 0 {
		slog.Warn("stuck jobs failed by sweeper", slog.Int("count", failed))
	}
}
