// Package openai implements the model client against an OpenAI-compatible
// API for chat completions and embeddings.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/observability"
)

// Client implements domain.AIClient over the /chat/completions and
// /embeddings endpoints.
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a client with per-endpoint timeouts.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: 60 * time.Second},
		embedHC: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) backoffFor(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.AIBackoff()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return backoff.WithContext(expo, ctx)
}

// readSnippet reads up to n bytes from r for error logging.
func readSnippet(r io.Reader, n int) string {
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return string(b)
}

// ChatJSON calls chat completions in JSON mode and returns the raw message
// content. Network errors, 429 and 5xx are retried with exponential backoff;
// other 4xx fail immediately.
func (c *Client) ChatJSON(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.AIAPIKey == "" || c.cfg.ChatModel == "" {
		slog.Error("chat credentials missing", slog.Bool("has_api_key", c.cfg.AIAPIKey != ""), slog.String("model", c.cfg.ChatModel))
		return "", fmt.Errorf("op=openai.ChatJSON: AI_API_KEY or CHAT_MODEL missing: %w", domain.ErrConfiguration)
	}
	body := map[string]any{
		"model": c.cfg.ChatModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	op := func() error {
		start := time.Now()
		// recreate the request each attempt to avoid reusing a consumed body
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AIBaseURL+"/chat/completions", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.chatHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("chat").Inc()
		observability.AIRequestDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("op", "chat"), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("chat: %w", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := readSnippet(resp.Body, 512)
			slog.Warn("ai provider 4xx", slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.ChatModel), slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := readSnippet(resp.Body, 512)
			slog.Error("ai provider non-2xx", slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}
	if err := backoff.Retry(op, c.backoffFor(ctx)); err != nil {
		return "", fmt.Errorf("op=openai.ChatJSON: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=openai.ChatJSON: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed calls the embeddings endpoint and returns one vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cfg.AIAPIKey == "" || c.cfg.EmbeddingsModel == "" {
		slog.Error("embeddings credentials missing", slog.Bool("has_api_key", c.cfg.AIAPIKey != ""), slog.String("model", c.cfg.EmbeddingsModel))
		return nil, fmt.Errorf("op=openai.Embed: AI_API_KEY or EMBEDDINGS_MODEL missing: %w", domain.ErrConfiguration)
	}
	body := map[string]any{
		"model": c.cfg.EmbeddingsModel,
		"input": texts,
	}
	b, _ := json.Marshal(body)

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AIBaseURL+"/embeddings", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.embedHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("embed").Inc()
		observability.AIRequestDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("op", "embed"), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("embed: %w", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := readSnippet(resp.Body, 512)
			slog.Warn("ai provider 4xx", slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.EmbeddingsModel), slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("embed status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := readSnippet(resp.Body, 512)
			slog.Error("ai provider non-2xx", slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return fmt.Errorf("embed status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}
	if err := backoff.Retry(op, c.backoffFor(ctx)); err != nil {
		return nil, fmt.Errorf("op=openai.Embed: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, errors.New("op=openai.Embed: empty data")
	}
	res := make([][]float32, len(out.Data))
	for i := range out.Data {
		v := make([]float32, len(out.Data[i].Embedding))
		for j := range out.Data[i].Embedding {
			v[j] = float32(out.Data[i].Embedding[j])
		}
		res[i] = v
	}
	return res, nil
}
