package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sisl-bd/eshop/internal/app"
	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	jobmetrics "github.com/sisl-bd/eshop/internal/jobs"
	"github.com/sisl-bd/eshop/internal/notify"
	"github.com/sisl-bd/eshop/internal/platform/cache"
	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/jobs"
	"github.com/sisl-bd/eshop/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	catalogService := catalog.NewService(catalog.NewRepository(pool), catalog.NewCache(redisClient, cfg.CatalogTTL))
	quotationService := quotations.NewService(quotations.NewRepository(pool), catalogService)

	renderer, err := documents.NewRenderer(
		report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout),
		documents.Config{MediaRoot: cfg.MediaRoot, MediaURL: cfg.MediaURL},
	)
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	documentService := documents.NewService(renderer, quotationService, logger)

	notifyCfg := notify.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		Recipient: cfg.NotifyRecipient,
		StartTLS:  cfg.SMTPStartTLS,
		Timeout:   cfg.SMTPTimeout,
	}
	dispatcher := notify.NewDispatcher(notify.NewSMTPSender(notifyCfg), notifyCfg, logger)

	metrics := jobmetrics.NewMetrics(nil)
	keys := shared.NewIdempotencyStore(pool)

	notifyJob := &jobs.QuotationNotifyJob{
		Quotations: quotationService,
		Documents:  documentService,
		Products:   catalogService,
		Notifier:   dispatcher,
		Keys:       keys,
		Logger:     logger,
		Metrics:    metrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{Keys: keys, Logger: logger, Metrics: metrics}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(30 * 24 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuotationNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
