package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/kivu-erp/kivu-erp/internal/app"
	"github.com/kivu-erp/kivu-erp/internal/fx"
	jobmetrics "github.com/kivu-erp/kivu-erp/internal/jobs"
	platformdb "github.com/kivu-erp/kivu-erp/internal/platform/db"
	"github.com/kivu-erp/kivu-erp/internal/stores"
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

	// The sweep only reads thresholds and sets flags, so the worker wires a
	// minimal stores service without notifier-side queueing: alerts here go
	// straight to the mailer through the same task queue the API uses.
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

	fxService := fx.NewService(fx.NewRepository(pool), nil, cfg.FxCacheTTL, logger)
	storesService := stores.NewService(stores.NewRepository(pool), fxService, nil,
		&jobs.QueueNotifier{Client: queueClient}, nil, nil, logger)

	mailer := &jobs.SMTPMailer{
		Addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		From: cfg.SMTPFrom,
	}

	metrics := jobmetrics.NewMetrics(nil)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.Instrument(metrics, "mail_send", jobs.NewSendEmailHandler(mailer, logger))},
			{Type: jobs.TaskTypeThresholdScan, Handler: jobs.Instrument(metrics, "threshold_scan", jobs.NewThresholdScanHandler(storesService, logger))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewThresholdScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
