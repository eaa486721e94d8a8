package domain

import "errors"

// Error taxonomy (sentinels). Wrap with fmt.Errorf("op=...: %w", err) so
// callers can classify with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")

	// ErrExtraction marks a structurally broken document (not a parseable
	// PDF, or no extractable text layer). Never retried.
	ErrExtraction = errors.New("extraction failed")

	// ErrRetrieval marks a transiently unavailable reference index.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrSchemaInvalid marks a model response that failed schema validation.
	// Transient from the scorer's perspective: retried within the scoring
	// client before escalating to ErrScoringFailed.
	ErrSchemaInvalid = errors.New("schema invalid")

	// ErrScoringFailed is terminal: raised after scoring retries are
	// exhausted, carrying the last underlying cause.
	ErrScoringFailed = errors.New("scoring failed")

	// ErrConfiguration marks missing credentials or model configuration.
	// Fatal and never retried.
	ErrConfiguration = errors.New("configuration error")

	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrInternal          = errors.New("internal error")
)
