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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/kivu-erp/kivu-erp/internal/app"
	"github.com/kivu-erp/kivu-erp/internal/budget"
	"github.com/kivu-erp/kivu-erp/internal/directory"
	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/ledger"
	"github.com/kivu-erp/kivu-erp/internal/observability"
	platformcache "github.com/kivu-erp/kivu-erp/internal/platform/cache"
	platformdb "github.com/kivu-erp/kivu-erp/internal/platform/db"
	"github.com/kivu-erp/kivu-erp/internal/requisition"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/stores"
	"github.com/kivu-erp/kivu-erp/internal/treasury"
	"github.com/kivu-erp/kivu-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, rate cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	notifier := &jobs.QueueNotifier{Client: queueClient}

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	directoryService := directory.NewService(directory.NewRepository(pool))
	directoryHandler := directory.NewHandler(logger, directoryService)

	fxService := fx.NewService(fx.NewRepository(pool), redisClient, cfg.FxCacheTTL, logger)
	fxHandler := fx.NewHandler(logger, fxService)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), fxService, auditLogger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, idempotencyStore)
	ledgerHandler.DefaultCurrency(cfg.BaseCurrency)

	treasuryService := treasury.NewService(treasury.NewRepository(pool), auditLogger)
	treasuryHandler := treasury.NewHandler(logger, treasuryService)

	requisitionService := requisition.NewService(requisition.NewRepository(pool), directoryService, notifier, auditLogger, approvalRecorder, metrics, logger)
	requisitionHandler := requisition.NewHandler(logger, requisitionService)

	storesService := stores.NewService(stores.NewRepository(pool), fxService, directoryService, notifier, auditLogger, metrics, logger)
	storesService.AllowNegativeStock(cfg.AllowNegativeStock)
	storesHandler := stores.NewHandler(logger, storesService)

	budgetService := budget.NewService(budget.NewRepository(pool), auditLogger, logger)
	budgetHandler := budget.NewHandler(logger, budgetService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		DirectoryHandler:   directoryHandler,
		FxHandler:          fxHandler,
		LedgerHandler:      ledgerHandler,
		TreasuryHandler:    treasuryHandler,
		RequisitionHandler: requisitionHandler,
		StoresHandler:      storesHandler,
		BudgetHandler:      budgetHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
