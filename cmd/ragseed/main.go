// Command ragseed ingests the YAML reference material into the vector index.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/screenhire/screener/internal/adapter/ai/openai"
	"github.com/screenhire/screener/internal/adapter/vector/qdrant"
	"github.com/screenhire/screener/internal/chunk"
	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/observability"
	"github.com/screenhire/screener/internal/ragseed"
)

func main() {
	dir := flag.String("dir", "configs/rag", "directory of YAML seed files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	seeder := ragseed.New(
		qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey),
		openai.New(cfg),
		chunk.NewSplitter(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens),
		cfg.EmbeddingDim,
	)
	if err := seeder.SeedDir(context.Background(), *dir); err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("reference material ingested", slog.String("dir", *dir))
}
