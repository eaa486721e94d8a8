// Package retrieval assembles reference context for scoring prompts by
// embedding an axis query and searching the reference index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/screenhire/screener/internal/chunk"
	"github.com/screenhire/screener/internal/domain"
)

// indexAttempts bounds transient index retries before surfacing ErrRetrieval.
const indexAttempts = 3

// Retriever embeds an axis query, searches one reference category and packs
// the hits into a token-budgeted context block.
type Retriever struct {
	AI           domain.AIClient
	Index        domain.ReferenceIndex
	TopK         int
	BudgetTokens int
	Splitter     *chunk.Splitter

	// RetryDelay spaces index retries. Zero means no delay (tests).
	RetryDelay time.Duration
}

// Context returns the reference snippets for the category, ordered by
// descending similarity, joined into one block no larger than BudgetTokens.
// An empty index yields an empty string and nil error so scoring can proceed
// without references.
func (r *Retriever) Context(ctx context.Context, axisQuery, category string) (string, error) {
	vecs, err := r.AI.Embed(ctx, []string{axisQuery})
	if err != nil {
		return "", fmt.Errorf("op=retrieval.Context category=%s: embed: %w", category, err)
	}
	if len(vecs) == 0 {
		return "", fmt.Errorf("op=retrieval.Context category=%s: embed returned no vectors: %w", category, domain.ErrRetrieval)
	}

	k := r.TopK
	if k <= 0 {
		k = 5
	}

	var chunks []domain.ReferenceChunk
	var lastErr error
	for attempt := 1; attempt <= indexAttempts; attempt++ {
		chunks, lastErr = r.Index.Query(ctx, vecs[0], category, k)
		if lastErr == nil {
			break
		}
		slog.Warn("reference index query failed",
			slog.String("category", category),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))
		if attempt < indexAttempts {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("op=retrieval.Context category=%s: %w", category, ctx.Err())
			case <-time.After(r.RetryDelay):
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("op=retrieval.Context category=%s: %v: %w", category, lastErr, domain.ErrRetrieval)
	}
	if len(chunks) == 0 {
		return "", nil
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	return r.pack(chunks), nil
}

// pack joins snippets best-first, dropping from the low-similarity tail once
// the token budget is reached.
func (r *Retriever) pack(chunks []domain.ReferenceChunk) string {
	budget := r.BudgetTokens
	if budget <= 0 {
		budget = 1500
	}
	var parts []string
	used := 0
	for _, c := range chunks {
		n := r.count(c.Text)
		if used+n > budget {
			break
		}
		parts = append(parts, strings.TrimSpace(c.Text))
		used += n
	}
	// always keep the best hit, truncated, rather than returning nothing
	if len(parts) == 0 && len(chunks) > 0 {
		parts = append(parts, r.truncate(strings.TrimSpace(chunks[0].Text), budget))
	}
	return strings.Join(parts, "\n\n")
}

func (r *Retriever) count(text string) int {
	if r.Splitter != nil {
		return r.Splitter.Count(text)
	}
	return len([]rune(text))
}

func (r *Retriever) truncate(text string, budget int) string {
	if r.Splitter == nil {
		runes := []rune(text)
		if len(runes) <= budget {
			return text
		}
		return string(runes[:budget])
	}
	cs := r.Splitter.Split(text)
	if len(cs) == 0 {
		return text
	}
	var b strings.Builder
	used := 0
	for _, c := range cs {
		if used+c.Tokens > budget {
			break
		}
		b.WriteString(c.Text)
		used += c.Tokens
	}
	if b.Len() == 0 {
		return cs[0].Text
	}
	return b.String()
}
