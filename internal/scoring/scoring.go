// Package scoring runs the model against each evaluation axis, validates the
// structured output and normalizes scores into the documented ranges.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/prompt"
)

const defaultMaxTokens = 1024

// CVAxisScore is the validated outcome of the CV axis.
type CVAxisScore struct {
	MatchRate       float64
	Feedback        string
	ParameterScores map[string]float64
}

// ProjectAxisScore is the validated outcome of the project axis.
type ProjectAxisScore struct {
	Score           float64
	Feedback        string
	ParameterScores map[string]float64
}

// Scorer drives prompt rendering, the model call and schema validation for
// both axes and the synthesis step. Schema failures are retried up to
// MaxAttempts before the axis fails terminally.
type Scorer struct {
	AI          domain.AIClient
	Prompts     *prompt.Builder
	Validate    *validator.Validate
	MaxAttempts int
	MaxTokens   int
}

// New builds a Scorer with its own validator instance.
func New(ai domain.AIClient, prompts *prompt.Builder, maxAttempts int) *Scorer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Scorer{
		AI:          ai,
		Prompts:     prompts,
		Validate:    validator.New(),
		MaxAttempts: maxAttempts,
		MaxTokens:   defaultMaxTokens,
	}
}

type cvResponse struct {
	MatchRate       float64            `json:"match_rate" validate:"gte=0"`
	Feedback        string             `json:"feedback" validate:"required"`
	ParameterScores map[string]float64 `json:"parameter_scores"`
}

type projectResponse struct {
	Score           float64            `json:"score" validate:"gte=0"`
	Feedback        string             `json:"feedback" validate:"required"`
	ParameterScores map[string]float64 `json:"parameter_scores"`
}

type synthesisResponse struct {
	OverallSummary string `json:"overall_summary" validate:"required"`
}

// ScoreCV runs the CV axis.
func (s *Scorer) ScoreCV(ctx context.Context, in prompt.CVInput) (CVAxisScore, error) {
	p, err := s.Prompts.CVScoring(in)
	if err != nil {
		return CVAxisScore{}, err
	}
	var out cvResponse
	if err := s.chatValidated(ctx, "cv", p, &out); err != nil {
		return CVAxisScore{}, err
	}
	return CVAxisScore{
		MatchRate:       normalizeMatchRate(out.MatchRate),
		Feedback:        out.Feedback,
		ParameterScores: clampMap(out.ParameterScores, 0, 1),
	}, nil
}

// ScoreProject runs the project axis.
func (s *Scorer) ScoreProject(ctx context.Context, in prompt.ProjectInput) (ProjectAxisScore, error) {
	p, err := s.Prompts.ProjectScoring(in)
	if err != nil {
		return ProjectAxisScore{}, err
	}
	var out projectResponse
	if err := s.chatValidated(ctx, "project", p, &out); err != nil {
		return ProjectAxisScore{}, err
	}
	return ProjectAxisScore{
		Score:           clamp(out.Score, 1, 10),
		Feedback:        out.Feedback,
		ParameterScores: clampMap(out.ParameterScores, 1, 10),
	}, nil
}

// Synthesize merges both axis outcomes into the overall summary.
func (s *Scorer) Synthesize(ctx context.Context, cv CVAxisScore, project ProjectAxisScore) (string, error) {
	p, err := s.Prompts.Synthesis(prompt.SynthesisInput{
		CVMatchRate:     cv.MatchRate,
		CVFeedback:      cv.Feedback,
		ProjectScore:    project.Score,
		ProjectFeedback: project.Feedback,
	})
	if err != nil {
		return "", err
	}
	var out synthesisResponse
	if err := s.chatValidated(ctx, "synthesis", p, &out); err != nil {
		return "", err
	}
	return out.OverallSummary, nil
}

// chatValidated calls the model and decodes+validates the response into dst,
// retrying schema failures up to MaxAttempts.
func (s *Scorer) chatValidated(ctx context.Context, axis string, p prompt.Prompt, dst any) error {
	dv := reflect.ValueOf(dst).Elem()
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		// every attempt decodes into a zeroed value; fields from a rejected
		// response must not survive into the next attempt
		dv.Set(reflect.Zero(dv.Type()))
		raw, err := s.AI.ChatJSON(ctx, p.System, p.User, s.MaxTokens)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				return err
			}
			return fmt.Errorf("op=scoring.chatValidated axis=%s: %v: %w", axis, err, domain.ErrScoringFailed)
		}
		cleaned := CleanJSONResponse(raw)
		if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
			lastErr = fmt.Errorf("decode: %v: %w", err, domain.ErrSchemaInvalid)
			slog.Warn("model response failed schema decode",
				slog.String("axis", axis),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}
		if err := s.Validate.Struct(dst); err != nil {
			lastErr = fmt.Errorf("validate: %v: %w", err, domain.ErrSchemaInvalid)
			slog.Warn("model response failed schema validation",
				slog.String("axis", axis),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}
		return nil
	}
	return fmt.Errorf("op=scoring.chatValidated axis=%s attempts=%d: %v: %w", axis, s.MaxAttempts, lastErr, domain.ErrScoringFailed)
}

// normalizeMatchRate maps percentage-style outputs onto the [0,1] fraction.
func normalizeMatchRate(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampMap(m map[string]float64, lo, hi float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = clamp(v, lo, hi)
	}
	return out
}
