package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/niaga-erp/niaga-erp/internal/app"
	"github.com/niaga-erp/niaga-erp/internal/batch"
	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/observability"
	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/shared"
	"github.com/niaga-erp/niaga-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger, metrics)

	batchRepo := batch.NewRepository(pool)
	batchService := batch.NewService(batchRepo, logger)

	scopeSource := jobs.NewPGScopeSource(pool)
	integrityHandler := jobs.NewStockIntegrityHandler(scopeSource, ledgerService, metrics, logger)
	expiryHandler := jobs.NewBatchExpiryHandler(scopeSource, batchService, logger)

	integrityTask, err := jobs.NewStockIntegrityScanTask(jobs.ScanPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewBatchExpirySweepTask(jobs.ScanPayload{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockIntegrityScan, Handler: integrityHandler},
			{Type: jobs.TaskBatchExpirySweep, Handler: expiryHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityScanSchedule, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.BatchExpirySchedule, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
