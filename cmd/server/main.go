// Command server starts the screening HTTP API: uploads, job submission
// and result polling.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/screenhire/screener/internal/adapter/extractor/pdf"
	"github.com/screenhire/screener/internal/adapter/httpserver"
	"github.com/screenhire/screener/internal/adapter/queue/redpanda"
	"github.com/screenhire/screener/internal/adapter/repo/postgres"
	"github.com/screenhire/screener/internal/adapter/vector/qdrant"
	"github.com/screenhire/screener/internal/app"
	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/observability"
	"github.com/screenhire/screener/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	resRepo := postgres.NewResultRepo(pool)

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close producer", slog.Any("error", err))
		}
	}()

	qcli := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey)

	uploadSvc := usecase.NewUploadService(docRepo, pdf.New())
	evalSvc := usecase.NewEvaluateService(jobRepo, docRepo, producer)
	resultSvc := usecase.NewResultService(jobRepo, resRepo)

	dbCheck, qdrantCheck := app.BuildReadinessChecks(pool, qcli)
	srv := httpserver.NewServer(cfg, uploadSvc, evalSvc, resultSvc, dbCheck, qdrantCheck)
	handler := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
