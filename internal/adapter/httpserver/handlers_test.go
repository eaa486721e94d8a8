package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/usecase"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[string]domain.Document
}

func (m *memDocs) Create(_ context.Context, d domain.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
	return d.ID, nil
}

func (m *memDocs) Get(_ context.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
}

func (m *memJobs) Create(_ context.Context, j domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memJobs) Claim(_ context.Context, _ string) (bool, error) { return false, nil }

func (m *memJobs) MarkCompleted(_ context.Context, _ string) error { return nil }

func (m *memJobs) MarkFailed(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = domain.JobFailed
	j.Error = msg
	m.jobs[id] = j
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
	r, ok := m.results[jobID]
	if !ok {
		return domain.Result{}, fmt.Errorf("result %s: %w", jobID, domain.ErrNotFound)
	}
	return r, nil
}

type fakeQueue struct{ payloads []domain.EvaluateTaskPayload }

func (q *fakeQueue) EnqueueEvaluate(_ context.Context, p domain.EvaluateTaskPayload) (string, error) {
	q.payloads = append(q.payloads, p)
	return p.JobID, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(_ context.Context, _ string, data []byte) (string, error) {
	return string(data), nil
}

type testEnv struct {
	srv     *Server
	docs    *memDocs
	jobs    *memJobs
	results *memResults
	queue   *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docs := &memDocs{docs: map[string]domain.Document{}}
	jobs := &memJobs{jobs: map[string]domain.Job{}, byIdemKey: map[string]string{}}
	results := &memResults{results: map[string]domain.Result{}}
	queue := &fakeQueue{}

	cfg := config.Config{AppEnv: "test", MaxUploadMB: 1}
	srv := NewServer(cfg,
		usecase.NewUploadService(docs, passthroughExtractor{}),
		usecase.NewEvaluateService(jobs, docs, queue),
		usecase.NewResultService(jobs, results),
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	)
	return &testEnv{srv: srv, docs: docs, jobs: jobs, results: results, queue: queue}
}

func multipartBody(t *testing.T, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for field, pair := range files {
		fw, err := mw.CreateFormFile(field, pair[0])
		require.NoError(t, err)
		_, err = fw.Write([]byte(pair[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestUploadHandlerSuccess(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string][2]string{
		"cv":      {"cv.txt", "experienced backend engineer"},
		"project": {"report.txt", "project report with tests"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	env.srv.UploadHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decodeBody(t, rec)
	assert.NotEmpty(t, m["cv_id"])
	assert.NotEmpty(t, m["project_id"])
	assert.Len(t, env.docs.docs, 2)
}

func TestUploadHandlerMissingFile(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string][2]string{
		"cv": {"cv.txt", "only one file"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	env.srv.UploadHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "project file required")
}

func TestUploadHandlerRejectsExtension(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, map[string][2]string{
		"cv":      {"cv.exe", "MZ payload"},
		"project": {"report.txt", "fine"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	env.srv.UploadHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported extension")
}

func TestUploadHandlerRejectsNonMultipart(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	env.srv.UploadHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedPair(t *testing.T, env *testEnv) (string, string) {
	t.Helper()
	cvID, err := env.docs.Create(context.Background(), domain.Document{ID: "cv-1", Type: domain.DocumentTypeCV, Text: "cv"})
	require.NoError(t, err)
	projectID, err := env.docs.Create(context.Background(), domain.Document{ID: "pr-1", Type: domain.DocumentTypeProject, Text: "pr"})
	require.NoError(t, err)
	return cvID, projectID
}

func TestEvaluateHandlerSuccess(t *testing.T) {
	env := newTestEnv(t)
	cvID, projectID := seedPair(t, env)

	payload := fmt.Sprintf(`{"cv_id":%q,"project_id":%q,"job_title":"Backend Engineer","vacancy_id":"vac-1"}`, cvID, projectID)
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	env.srv.EvaluateHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decodeBody(t, rec)
	assert.NotEmpty(t, m["id"])
	assert.Equal(t, "queued", m["status"])
	require.Len(t, env.queue.payloads, 1)
	assert.Equal(t, "Backend Engineer", env.queue.payloads[0].JobTitle)
}

func TestEvaluateHandlerValidation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"cv_id":"x"}`))
	rec := httptest.NewRecorder()
	env.srv.EvaluateHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")

	req = httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	env.srv.EvaluateHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateHandlerIdempotencyHeader(t *testing.T) {
	env := newTestEnv(t)
	cvID, projectID := seedPair(t, env)

	payload := fmt.Sprintf(`{"cv_id":%q,"project_id":%q,"job_title":"Backend Engineer"}`, cvID, projectID)
	submit := func() string {
		req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(payload))
		req.Header.Set("Idempotency-Key", "same-key")
		rec := httptest.NewRecorder()
		env.srv.EvaluateHandler()(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody(t, rec)["id"].(string)
	}
	first := submit()
	second := submit()
	assert.Equal(t, first, second)
	assert.Len(t, env.queue.payloads, 1)
}

func resultRequest(id, ifNoneMatch string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/result/"+id, nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestResultHandlerCompleted(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	_, err := env.jobs.Create(context.Background(), domain.Job{
		ID: "job-1", Status: domain.JobCompleted, CreatedAt: now, StartedAt: &now, FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, env.results.Upsert(context.Background(), domain.Result{
		JobID: "job-1", CVMatchRate: 0.8, ProjectScore: 7, OverallSummary: "Recommended.",
	}))

	rec := httptest.NewRecorder()
	env.srv.ResultHandler()(rec, resultRequest("job-1", ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	m := decodeBody(t, rec)
	result, ok := m["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.8, result["cv_match_rate"])
}

func TestResultHandlerNotModified(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.jobs.Create(context.Background(), domain.Job{ID: "job-2", Status: domain.JobQueued, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	env.srv.ResultHandler()(rec, resultRequest("job-2", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = httptest.NewRecorder()
	env.srv.ResultHandler()(rec, resultRequest("job-2", etag))
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResultHandlerNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.srv.ResultHandler()(rec, resultRequest("missing", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestReadyzHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.srv.QdrantCheck = func(context.Context) error { return errors.New("connection refused") }
	rec = httptest.NewRecorder()
	env.srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "qdrant")
}

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
