// Package pipeline orchestrates one evaluation job from claim to terminal
// status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/screenhire/screener/internal/chunk"
	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/observability"
	"github.com/screenhire/screener/internal/prompt"
	"github.com/screenhire/screener/internal/retrieval"
	"github.com/screenhire/screener/internal/scoring"
)

// jobType labels job lifecycle metrics.
const jobType = "evaluate"

const (
	// defaultCandidateBudget caps candidate text tokens per prompt when no
	// budget is configured.
	defaultCandidateBudget = 6000
	// queryBudgetTokens bounds the candidate excerpt used as the retrieval
	// query for an axis.
	queryBudgetTokens = 256
)

// Runner executes the evaluation pipeline for claimed jobs. A job failure is
// recorded on the job row and never propagates as a handler error, so the
// worker keeps consuming.
type Runner struct {
	Jobs      domain.JobRepository
	Documents domain.DocumentRepository
	Results   domain.ResultRepository
	Scorer    *scoring.Scorer
	Retriever *retrieval.Retriever
	Splitter  *chunk.Splitter

	// CandidateBudgetTokens caps how much of each uploaded document reaches
	// the model. Zero means defaultCandidateBudget. Without a Splitter the
	// budget counts runes.
	CandidateBudgetTokens int

	// JobTimeout caps wall time for a single evaluation. Zero disables it.
	JobTimeout time.Duration
}

// Handle processes one queued payload. It returns an error only for
// infrastructure failures where redelivery can help; domain failures
// terminate the job via MarkFailed and return nil.
func (r *Runner) Handle(ctx context.Context, payload domain.EvaluateTaskPayload) error {
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.Handle")
	span.SetAttributes(attribute.String("job.id", payload.JobID))
	defer span.End()

	lg := observability.LoggerFromContext(ctx).With(slog.String("job_id", payload.JobID))

	claimed, err := r.Jobs.Claim(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("op=pipeline.Handle: claim: %w", err)
	}
	if !claimed {
		lg.Info("job not claimable, skipping")
		return nil
	}
	observability.StartProcessingJob(jobType)

	if r.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.JobTimeout)
		defer cancel()
	}

	res, err := r.evaluate(ctx, payload)
	if err != nil {
		lg.Error("evaluation failed", slog.Any("error", err))
		if markErr := r.Jobs.MarkFailed(ctx, payload.JobID, err.Error()); markErr != nil {
			// context may already be dead; use a fresh one so the job
			// does not stay stuck in processing
			fallback, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if retryErr := r.Jobs.MarkFailed(fallback, payload.JobID, err.Error()); retryErr != nil {
				observability.FailJob(jobType)
				return fmt.Errorf("op=pipeline.Handle: mark failed: %w", retryErr)
			}
		}
		observability.FailJob(jobType)
		return nil
	}

	if err := r.Results.Upsert(ctx, res); err != nil {
		return fmt.Errorf("op=pipeline.Handle: upsert result: %w", err)
	}
	if err := r.Jobs.MarkCompleted(ctx, payload.JobID); err != nil {
		return fmt.Errorf("op=pipeline.Handle: mark completed: %w", err)
	}
	observability.CompleteJob(jobType)
	observability.ObserveEvaluation(res.CVMatchRate, res.ProjectScore)
	lg.Info("job completed",
		slog.Float64("cv_match_rate", res.CVMatchRate),
		slog.Float64("project_score", res.ProjectScore))
	return nil
}

func (r *Runner) evaluate(ctx context.Context, payload domain.EvaluateTaskPayload) (domain.Result, error) {
	cvDoc, err := r.Documents.Get(ctx, payload.CVID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("cv document %s: %w", payload.CVID, err)
	}
	projectDoc, err := r.Documents.Get(ctx, payload.ProjectID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("project document %s: %w", payload.ProjectID, err)
	}

	cvText := r.capCandidate(cvDoc.Text)
	projectText := r.capCandidate(projectDoc.Text)

	cvQuery := r.axisQuery(payload.JobTitle, cvText)
	projectQuery := r.axisQuery(payload.JobTitle, projectText)

	cvContext, err := r.Retriever.Context(ctx, cvQuery, domain.CategoryJobDescription)
	if err != nil {
		return domain.Result{}, err
	}
	rubricContext, err := r.Retriever.Context(ctx, projectQuery, domain.CategoryScoringRubric)
	if err != nil {
		return domain.Result{}, err
	}
	caseContext, err := r.Retriever.Context(ctx, projectQuery, domain.CategoryCaseStudy)
	if err != nil {
		return domain.Result{}, err
	}

	cvScore, err := r.Scorer.ScoreCV(ctx, prompt.CVInput{
		JobTitle:  payload.JobTitle,
		VacancyID: payload.VacancyID,
		CVText:    cvText,
		Context:   cvContext,
	})
	if err != nil {
		return domain.Result{}, err
	}

	projectContext := joinContexts(caseContext, rubricContext)
	projectScore, err := r.Scorer.ScoreProject(ctx, prompt.ProjectInput{
		JobTitle:    payload.JobTitle,
		ProjectText: projectText,
		Context:     projectContext,
	})
	if err != nil {
		return domain.Result{}, err
	}

	summary, err := r.Scorer.Synthesize(ctx, cvScore, projectScore)
	if err != nil {
		return domain.Result{}, err
	}

	return domain.Result{
		JobID:            payload.JobID,
		CVMatchRate:      cvScore.MatchRate,
		CVFeedback:       cvScore.Feedback,
		ProjectScore:     projectScore.Score,
		ProjectFeedback:  projectScore.Feedback,
		OverallSummary:   summary,
		CVParameters:     cvScore.ParameterScores,
		ProjectParams:    projectScore.ParameterScores,
		RetrievedContext: snapshotContexts(cvContext, projectContext),
	}, nil
}

// capCandidate bounds document text to the candidate token budget, keeping
// the head of the document.
func (r *Runner) capCandidate(text string) string {
	budget := r.CandidateBudgetTokens
	if budget <= 0 {
		budget = defaultCandidateBudget
	}
	return r.truncate(text, budget)
}

// axisQuery pairs the job title with the leading slice of the candidate's own
// text; the reference index is searched with this, not with a canned phrase.
func (r *Runner) axisQuery(jobTitle, text string) string {
	head := strings.TrimSpace(r.truncate(text, queryBudgetTokens))
	switch {
	case head == "":
		return jobTitle
	case jobTitle == "":
		return head
	}
	return jobTitle + "\n\n" + head
}

func (r *Runner) truncate(text string, budget int) string {
	if r.Splitter != nil {
		return r.Splitter.Truncate(text, budget)
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}

func joinContexts(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func snapshotContexts(cvContext, projectContext string) string {
	var b strings.Builder
	if cvContext != "" {
		b.WriteString("[cv]\n")
		b.WriteString(cvContext)
	}
	if projectContext != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[project]\n")
		b.WriteString(projectContext)
	}
	return b.String()
}
