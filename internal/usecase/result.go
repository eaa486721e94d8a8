package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/screenhire/screener/internal/domain"
)

// ResultService assembles the poll envelope for result fetches, including
// conditional responses via ETag.
type ResultService struct {
	Jobs    domain.JobRepository
	Results domain.ResultRepository
}

// NewResultService constructs a ResultService.
func NewResultService(j domain.JobRepository, r domain.ResultRepository) ResultService {
	return ResultService{Jobs: j, Results: r}
}

// Fetch returns the HTTP status, envelope and ETag for a job id. The
// envelope always carries the lifecycle timestamps; the result block is
// present iff completed and the error block iff failed.
func (s ResultService) Fetch(ctx context.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("%w: job not found", domain.ErrNotFound)
		}
		return http.StatusInternalServerError, nil, "", err
	}

	m := map[string]any{
		"id":        job.ID,
		"status":    string(job.Status),
		"queued_at": job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		m["started_at"] = job.StartedAt.UTC().Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		m["finished_at"] = job.FinishedAt.UTC().Format(time.RFC3339)
	}

	switch job.Status {
	case domain.JobFailed:
		m["error"] = map[string]any{
			"code":    errorCodeFromJobError(job.Error),
			"message": job.Error,
		}
	case domain.JobCompleted:
		res, err := s.Results.GetByJobID(ctx, id)
		if err != nil {
			return http.StatusInternalServerError, nil, "", err
		}
		result := map[string]any{
			"cv_match_rate":    res.CVMatchRate,
			"cv_feedback":      res.CVFeedback,
			"project_score":    res.ProjectScore,
			"project_feedback": res.ProjectFeedback,
			"overall_summary":  res.OverallSummary,
		}
		if len(res.CVParameters) > 0 {
			result["cv_parameter_scores"] = res.CVParameters
		}
		if len(res.ProjectParams) > 0 {
			result["project_parameter_scores"] = res.ProjectParams
		}
		m["result"] = result
	}

	etag := makeETag(m)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// errorCodeFromJobError maps a stored job error message to a stable code.
func errorCodeFromJobError(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(s, "extraction failed"):
		return "EXTRACTION_FAILED"
	case strings.Contains(s, "schema invalid"), strings.Contains(s, "scoring failed"):
		return "SCORING_FAILED"
	case strings.Contains(s, "retrieval failed"):
		return "RETRIEVAL_UNAVAILABLE"
	case strings.Contains(s, "rate limit"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "configuration"):
		return "CONFIGURATION"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	case strings.Contains(s, "invalid argument"):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
