package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/formreports/internal/app"
	jobmetrics "github.com/odyssey-erp/formreports/internal/jobs"
	"github.com/odyssey-erp/formreports/internal/observability"
	"github.com/odyssey-erp/formreports/internal/platform/cache"
	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadToolConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	stack, err := app.BuildReports(ctx, cfg, logger, redisClient, metrics)
	if err != nil {
		logger.Error("build report stack", slog.Any("error", err))
		os.Exit(1)
	}
	defer stack.Close()

	packJob := reports.NewPackJob(reports.PackJobConfig{
		Store:      reports.NewPackStore(redisClient, cfg.PackTTL),
		Service:    stack.Service,
		StorageDir: cfg.PackStorageDir,
		Retention:  cfg.PackTTL,
		Logger:     logger,
		Metrics:    jobmetrics.NewMetrics(metrics.Registerer()),
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.QueueOpt(redisClient),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidatePack, Handler: packJob.Handle},
			{Type: jobs.TaskSweepPacks, Handler: packJob.Sweep},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 * * * *", Task: jobs.NewSweepPacksTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
