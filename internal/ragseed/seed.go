// Package ragseed ingests YAML reference material into the vector index.
// Each file carries one category of reference chunks (job descriptions,
// scoring rubrics, case study briefs); long texts are split with the same
// chunker the retrieval path counts tokens with.
package ragseed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/screenhire/screener/internal/adapter/vector/qdrant"
	"github.com/screenhire/screener/internal/chunk"
	"github.com/screenhire/screener/internal/domain"
)

const embedBatchSize = 16

var validCategories = map[string]struct{}{
	domain.CategoryJobDescription: {},
	domain.CategoryScoringRubric:  {},
	domain.CategoryCaseStudy:      {},
}

type seedFile struct {
	Category string     `yaml:"category"`
	Items    []string   `yaml:"items"`
	Data     []seedItem `yaml:"data"`
}

type seedItem struct {
	Text    string  `yaml:"text"`
	Section string  `yaml:"section"`
	Weight  float64 `yaml:"weight"`
}

// Seeder embeds reference texts and upserts them into the shared collection.
type Seeder struct {
	Client     *qdrant.Client
	AI         domain.AIClient
	Splitter   *chunk.Splitter
	Collection string
	VectorSize int
}

// New constructs a Seeder over the default collection.
func New(client *qdrant.Client, ai domain.AIClient, splitter *chunk.Splitter, vectorSize int) *Seeder {
	return &Seeder{
		Client:     client,
		AI:         ai,
		Splitter:   splitter,
		Collection: qdrant.DefaultCollection,
		VectorSize: vectorSize,
	}
}

// SeedDir ensures the collection exists and ingests every YAML file in dir.
func (s *Seeder) SeedDir(ctx context.Context, dir string) error {
	if err := s.Client.EnsureCollection(ctx, s.Collection, s.VectorSize, "Cosine"); err != nil {
		return fmt.Errorf("op=ragseed.SeedDir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("op=ragseed.SeedDir: %w", err)
	}
	seeded := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		if err := s.SeedFile(ctx, filepath.Join(dir, e.Name())); err != nil {
			return err
		}
		seeded++
	}
	if seeded == 0 {
		return fmt.Errorf("op=ragseed.SeedDir: no yaml seed files in %s", dir)
	}
	return nil
}

// SeedFile ingests one YAML seed file. The category comes from the file body
// or, when absent, from the file name without extension.
func (s *Seeder) SeedFile(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("op=ragseed.SeedFile: seed file not found: %s", path)
		}
		return fmt.Errorf("op=ragseed.SeedFile: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("op=ragseed.SeedFile path=%s: %w", path, err)
	}

	category := strings.TrimSpace(doc.Category)
	if category == "" {
		category = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	if _, ok := validCategories[category]; !ok {
		return fmt.Errorf("op=ragseed.SeedFile path=%s: unknown category %q", path, category)
	}

	items := collectItems(doc)
	if len(items) == 0 {
		return fmt.Errorf("op=ragseed.SeedFile path=%s: no texts to seed", path)
	}

	chunks := s.splitItems(items)
	if err := s.upsertAll(ctx, category, chunks); err != nil {
		return fmt.Errorf("op=ragseed.SeedFile path=%s: %w", path, err)
	}
	slog.Info("seeded reference category",
		slog.String("category", category),
		slog.Int("items", len(items)),
		slog.Int("chunks", len(chunks)))
	return nil
}

// collectItems merges data entries and plain items, deduplicating by text and
// preferring entries that carry metadata.
func collectItems(doc seedFile) []seedItem {
	seen := make(map[string]struct{})
	out := make([]seedItem, 0, len(doc.Data)+len(doc.Items))
	for _, it := range doc.Data {
		t := strings.TrimSpace(it.Text)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		it.Text = t
		out = append(out, it)
	}
	for _, raw := range doc.Items {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, seedItem{Text: t})
	}
	return out
}

// splitItems chunks long texts, carrying the source metadata into each chunk.
func (s *Seeder) splitItems(items []seedItem) []seedItem {
	out := make([]seedItem, 0, len(items))
	for _, it := range items {
		if s.Splitter == nil {
			out = append(out, it)
			continue
		}
		for _, c := range s.Splitter.Split(it.Text) {
			out = append(out, seedItem{Text: c.Text, Section: it.Section, Weight: it.Weight})
		}
	}
	return out
}

func (s *Seeder) upsertAll(ctx context.Context, category string, items []seedItem) error {
	for start := 0; start < len(items); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.Text
		}
		vecs, err := s.AI.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(batch))
		}

		payloads := make([]map[string]any, len(batch))
		ids := make([]any, len(batch))
		for i, it := range batch {
			p := map[string]any{"text": it.Text, "category": category}
			if it.Section != "" {
				p["section"] = it.Section
			}
			if it.Weight > 0 {
				p["weight"] = it.Weight
			}
			payloads[i] = p
			ids[i] = pointID(category, it.Text)
		}
		if err := s.Client.UpsertPoints(ctx, s.Collection, vecs, payloads, ids); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

// pointID derives a stable point id from category and text so re-running the
// seeder never duplicates points.
func pointID(category, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(category+":"+text)).String()
}
