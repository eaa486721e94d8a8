package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/screenhire/screener/internal/domain"
)

type memDocs struct {
	mu      sync.Mutex
	docs    map[string]domain.Document
	getErr  error
	created []domain.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]domain.Document{}}
}

func (m *memDocs) Create(_ context.Context, d domain.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
	m.created = append(m.created, d)
	return d.ID, nil
}

func (m *memDocs) Get(_ context.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Document{}, m.getErr
	}
	d, ok := m.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

type memJobs struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	byIdemKey map[string]string
	createErr error
	failedMsg map[string]string
}

func newMemJobs() *memJobs {
	return &memJobs{
		jobs:      map[string]domain.Job{},
		byIdemKey: map[string]string{},
		failedMsg: map[string]string{},
	}
}

func (m *memJobs) Create(_ context.Context, j domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.jobs[j.ID] = j
	if j.IdemKey != nil {
		m.byIdemKey[*j.IdemKey] = j.ID
	}
	return j.ID, nil
}

func (m *memJobs) Get(_ context.Context, id string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j, nil
}

func (m *memJobs) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != domain.JobQueued {
		return false, nil
	}
	j.Status = domain.JobProcessing
	m.jobs[id] = j
	return true, nil
}

func (m *memJobs) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = domain.JobCompleted
	now := time.Now().UTC()
	j.FinishedAt = &now
	m.jobs[id] = j
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = domain.JobFailed
	j.Error = errMsg
	now := time.Now().UTC()
	j.FinishedAt = &now
	m.jobs[id] = j
	m.failedMsg[id] = errMsg
	return nil
}

func (m *memJobs) FindByIdempotencyKey(_ context.Context, key string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdemKey[key]
	if !ok {
		return domain.Job{}, fmt.Errorf("idempotency key: %w", domain.ErrNotFound)
	}
	return m.jobs[id], nil
}

func (m *memJobs) ListStuckProcessing(_ context.Context, _ time.Time, _ int) ([]domain.Job, error) {
	return nil, nil
}

type memResults struct {
	mu      sync.Mutex
	results map[string]domain.Result
	getErr  error
}

func newMemResults() *memResults {
	return &memResults{results: map[string]domain.Result{}}
}

func (m *memResults) Upsert(_ context.Context, r domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.JobID] = r
	return nil
}

func (m *memResults) GetByJobID(_ context.Context, jobID string) (domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Result{}, m.getErr
	}
	r, ok := m.results[jobID]
	if !ok {
		return domain.Result{}, fmt.Errorf("result %s: %w", jobID, domain.ErrNotFound)
	}
	return r, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	payloads []domain.EvaluateTaskPayload
	err      error
}

func (q *fakeQueue) EnqueueEvaluate(_ context.Context, p domain.EvaluateTaskPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return p.JobID, nil
}

type fakeExtractor struct {
	err   error
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, filename string, data []byte) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf("text of %s (%d bytes)", filename, len(data)), nil
}
