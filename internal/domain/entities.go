// Package domain holds the core entities and ports of the screener service.
package domain

import (
	"context"
	"time"
)

// DocumentType enumerates candidate document kinds.
const (
	DocumentTypeCV      = "cv"
	DocumentTypeProject = "project"
)

// Document is a parsed candidate artifact. The upload boundary extracts and
// sanitizes the text once; the evaluation pipeline consumes it read-only by id.
type Document struct {
	ID        string
	Type      string
	Text      string
	Filename  string
	MIME      string
	Size      int64
	CreatedAt time.Time
}

// JobStatus is the lifecycle state of an evaluation job.
type JobStatus string

// Job lifecycle: queued -> processing -> completed | failed.
// Terminal states never transition again.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job is one evaluation request.
// Invariants: StartedAt is set exactly when the job enters processing;
// FinishedAt is set exactly when it reaches a terminal status; Error is
// non-empty iff the job failed; a result row exists iff the job completed.
type Job struct {
	ID         string
	Status     JobStatus
	CVID       string
	ProjectID  string
	JobTitle   string
	VacancyID  string
	Error      string
	IdemKey    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Result is the merged outcome of both evaluation axes. Immutable once the
// job is terminal.
type Result struct {
	JobID            string
	CVMatchRate      float64 // normalized fraction [0,1]
	CVFeedback       string
	ProjectScore     float64 // [1,10]
	ProjectFeedback  string
	OverallSummary   string
	CVParameters     map[string]float64
	ProjectParams    map[string]float64
	RetrievedContext string // audit snapshot of the context fed to the model
	CreatedAt        time.Time
}

// ReferenceChunk is one retrieved reference snippet with its similarity score.
type ReferenceChunk struct {
	Text  string
	Score float64
}

// Reference categories the index is partitioned by.
const (
	CategoryJobDescription = "job_description"
	CategoryScoringRubric  = "scoring_rubric"
	CategoryCaseStudy      = "case_study"
)

// EvaluateTaskPayload travels over the queue from submit to worker.
type EvaluateTaskPayload struct {
	JobID     string `json:"job_id"`
	CVID      string `json:"cv_id"`
	ProjectID string `json:"project_id"`
	JobTitle  string `json:"job_title"`
	VacancyID string `json:"vacancy_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Ports. Adapters implement these; usecases and the pipeline depend on them.

// DocumentRepository persists extracted candidate documents.
type DocumentRepository interface {
	Create(ctx context.Context, d Document) (string, error)
	Get(ctx context.Context, id string) (Document, error)
}

// JobRepository persists evaluation jobs. Claim must be atomic per job id:
// it transitions queued -> processing and reports whether this caller won.
type JobRepository interface {
	Create(ctx context.Context, j Job) (string, error)
	Get(ctx context.Context, id string) (Job, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	FindByIdempotencyKey(ctx context.Context, key string) (Job, error)
	ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
}

// ResultRepository persists merged evaluation results keyed by job id.
type ResultRepository interface {
	Upsert(ctx context.Context, r Result) error
	GetByJobID(ctx context.Context, jobID string) (Result, error)
}

// Queue enqueues evaluation tasks for background execution.
type Queue interface {
	EnqueueEvaluate(ctx context.Context, payload EvaluateTaskPayload) (string, error)
}

// AIClient is the external model capability: chat completions constrained to
// JSON output, and embedding vectors for similarity search.
type AIClient interface {
	ChatJSON(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor turns raw document bytes into normalized plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// ReferenceIndex is the semantic store of pre-ingested reference chunks.
// Querying an empty or missing category returns an empty slice, not an error.
type ReferenceIndex interface {
	Query(ctx context.Context, vector []float32, category string, k int) ([]ReferenceChunk, error)
}
