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

	"github.com/sisl-bd/eshop/internal/admin"
	"github.com/sisl-bd/eshop/internal/app"
	"github.com/sisl-bd/eshop/internal/auth"
	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	"github.com/sisl-bd/eshop/internal/observability"
	"github.com/sisl-bd/eshop/internal/platform/cache"
	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/rbac"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/storefront"
	"github.com/sisl-bd/eshop/internal/view"
	"github.com/sisl-bd/eshop/jobs"
	"github.com/sisl-bd/eshop/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "eshop_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine(cfg.MediaURL)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	rbacService := rbac.NewService(rbac.NewStore(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), catalog.NewCache(redisClient, cfg.CatalogTTL))
	quotationService := quotations.NewService(quotations.NewRepository(dbpool), catalogService)

	reportClient := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
	renderer, err := documents.NewRenderer(reportClient, documents.Config{MediaRoot: cfg.MediaRoot, MediaURL: cfg.MediaURL})
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	documentService := documents.NewService(renderer, quotationService, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	storefrontHandler := storefront.NewHandler(storefront.Params{
		Logger:      logger,
		Catalog:     catalogService,
		Quotations:  quotationService,
		Documents:   documentService,
		Queue:       jobClient,
		Permissions: rbacService,
		Templates:   templates,
		CSRF:        csrfManager,
		RBAC:        rbacMiddleware,
		Metrics:     metrics,
	})
	adminHandler := admin.NewHandler(logger, catalogService, quotationService, documentService, templates, csrfManager, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		StorefrontHandler: storefrontHandler,
		AdminHandler:      adminHandler,
		ReportHandler:     report.NewHandler(reportClient, logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
