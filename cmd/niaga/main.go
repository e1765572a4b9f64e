package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/niaga-erp/niaga-erp/internal/app"
	"github.com/niaga-erp/niaga-erp/internal/batch"
	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/masterdata"
	"github.com/niaga-erp/niaga-erp/internal/observability"
	"github.com/niaga-erp/niaga-erp/internal/opname"
	"github.com/niaga-erp/niaga-erp/internal/platform/cache"
	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/procurement"
	"github.com/niaga-erp/niaga-erp/internal/sales"
	"github.com/niaga-erp/niaga-erp/internal/shared"
	"github.com/niaga-erp/niaga-erp/internal/tolerance"
	"github.com/niaga-erp/niaga-erp/internal/transfer"
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	batchRepo := batch.NewRepository(dbpool)
	batchService := batch.NewService(batchRepo, logger)
	batchHandler := batch.NewHandler(logger, batchService, cfg.ExpiryWarningDays)

	opnameRepo := opname.NewRepository(dbpool)
	opnameService := opname.NewService(opnameRepo, ledgerService, ledgerService, auditLogger, logger)
	opnameHandler := opname.NewHandler(logger, opnameService)

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo, logger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	transferRepo := transfer.NewRepository(dbpool)
	transferService := transfer.NewService(transferRepo, masterdataService, ledgerService, auditLogger, logger)
	transferHandler := transfer.NewHandler(logger, transferService)

	toleranceRepo := tolerance.NewRepository(dbpool)
	toleranceService := tolerance.NewService(toleranceRepo, redisClient, cfg.ToleranceCacheTTL, logger)
	toleranceHandler := tolerance.NewHandler(logger, toleranceService)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, toleranceService, masterdataService, ledgerService, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, masterdataService, ledgerService, auditLogger, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		BatchHandler:       batchHandler,
		OpnameHandler:      opnameHandler,
		TransferHandler:    transferHandler,
		ToleranceHandler:   toleranceHandler,
		ProcurementHandler: procurementHandler,
		SalesHandler:       salesHandler,
		MasterDataHandler:  masterdataHandler,
		JobsHandler:        jobsHandler,
		IdempotencyStore:   idempotencyStore,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
