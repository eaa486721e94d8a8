// Command worker consumes evaluation tasks from Redpanda and runs the
// scoring pipeline. It also hosts the stuck-job sweeper and the retention
// cleanup loop.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screenhire/screener/internal/adapter/ai/openai"
	"github.com/screenhire/screener/internal/adapter/queue/redpanda"
	"github.com/screenhire/screener/internal/adapter/repo/postgres"
	"github.com/screenhire/screener/internal/adapter/vector/qdrant"
	"github.com/screenhire/screener/internal/app"
	"github.com/screenhire/screener/internal/chunk"
	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/observability"
	"github.com/screenhire/screener/internal/pipeline"
	"github.com/screenhire/screener/internal/prompt"
	"github.com/screenhire/screener/internal/retrieval"
	"github.com/screenhire/screener/internal/scoring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)
	docRepo := postgres.NewDocumentRepo(pool)
	resRepo := postgres.NewResultRepo(pool)

	aiClient := openai.New(cfg)
	qcli := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	splitter := chunk.NewSplitter(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens)

	runner := &pipeline.Runner{
		Jobs:      jobRepo,
		Documents: docRepo,
		Results:   resRepo,
		Scorer:    scoring.New(aiClient, prompt.New(), cfg.ScoringMaxAttempts),
		Splitter:  splitter,
		Retriever: &retrieval.Retriever{
			AI:           aiClient,
			Index:        qdrant.NewIndex(qcli, ""),
			TopK:         cfg.RetrievalTopK,
			BudgetTokens: cfg.ContextBudgetTokens,
			Splitter:     splitter,
			RetryDelay:   500 * time.Millisecond,
		},
		CandidateBudgetTokens: cfg.CandidateBudgetTokens,
		JobTimeout:            cfg.JobTimeout,
	}

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroupID, cfg.ConsumerMaxConcurrency, runner.Handle)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	sweeper := app.NewStuckJobSweeper(jobRepo, cfg.StuckJobMaxAge, cfg.StuckJobSweepInterval)
	go sweeper.Run(ctx)

	if cfg.CleanupRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.CleanupRetentionDays)
		go cleanup.Run(ctx, cfg.CleanupInterval)
		slog.Info("retention cleanup started",
			slog.Int("retention_days", cfg.CleanupRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	slog.Info("consumer starting",
		slog.String("group_id", cfg.ConsumerGroupID),
		slog.Int("workers", cfg.ConsumerMaxConcurrency))
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
