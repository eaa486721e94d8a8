package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenhire/screener/internal/domain"
)

type sweepJobs struct {
	mu      sync.Mutex
	stuck   []domain.Job
	failed  map[string]string
	listErr error
	markErr error
}

func (s *sweepJobs) Create(context.Context, domain.Job) (string, error) { return "", nil }
func (s *sweepJobs) Get(context.Context, string) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}
func (s *sweepJobs) Claim(context.Context, string) (bool, error)  { return false, nil }
func (s *sweepJobs) MarkCompleted(context.Context, string) error  { return nil }
func (s *sweepJobs) FindByIdempotencyKey(context.Context, string) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (s *sweepJobs) MarkFailed(_ context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.failed[id] = msg
	for i, j := range s.stuck {
		if j.ID == id {
			s.stuck = append(s.stuck[:i], s.stuck[i+1:]...)
			break
		}
	}
	return nil
}

func (s *sweepJobs) ListStuckProcessing(_ context.Context, _ time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.stuck) > limit {
		return s.stuck[:limit], nil
	}
	return append([]domain.Job(nil), s.stuck...), nil
}

func TestSweepOnceFailsStuckJobs(t *testing.T) {
	jobs := &sweepJobs{
		stuck: []domain.Job{
			{ID: "job-1", Status: domain.JobProcessing},
			{ID: "job-2", Status: domain.JobProcessing},
		},
		failed: map[string]string{},
	}
	s := NewStuckJobSweeper(jobs, 10*time.Minute, time.Minute)
	require.NotNil(t, s)

	s.sweepOnce(context.Background())

	require.Len(t, jobs.failed, 2)
	assert.Contains(t, jobs.failed["job-1"], "job timed out")
	assert.Empty(t, jobs.stuck)
}

func TestSweepOnceListError(t *testing.T) {
	jobs := &sweepJobs{failed: map[string]string{}, listErr: errors.New("db down")}
	s := NewStuckJobSweeper(jobs, time.Minute, time.Minute)

	s.sweepOnce(context.Background())
	assert.Empty(t, jobs.failed)
}

func TestSweepOnceStopsWhenMarkingFails(t *testing.T) {
	stuck := make([]domain.Job, sweepBatchSize)
	for i := range stuck {
		stuck[i] = domain.Job{ID: string(rune('a' + i%26)), Status: domain.JobProcessing}
	}
	jobs := &sweepJobs{stuck: stuck, failed: map[string]string{}, markErr: errors.New("db down")}
	s := NewStuckJobSweeper(jobs, time.Minute, time.Minute)

	done := make(chan struct{})
	go func() {
		s.sweepOnce(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not terminate")
	}
}

func TestNewStuckJobSweeperDefaults(t *testing.T) {
	assert.Nil(t, NewStuckJobSweeper(nil, 0, 0))

	s := NewStuckJobSweeper(&sweepJobs{failed: map[string]string{}}, 0, 0)
	require.NotNil(t, s)
	assert.Equal(t, 10*time.Minute, s.maxAge)
	assert.Equal(t, time.Minute, s.interval)
}
