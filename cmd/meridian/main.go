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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-books/meridian-books/internal/accounts"
	"github.com/meridian-books/meridian-books/internal/app"
	"github.com/meridian-books/meridian-books/internal/balances"
	"github.com/meridian-books/meridian-books/internal/journal"
	"github.com/meridian-books/meridian-books/internal/observability"
	"github.com/meridian-books/meridian-books/internal/periods"
	"github.com/meridian-books/meridian-books/internal/recon"
	"github.com/meridian-books/meridian-books/internal/shared"
	"github.com/meridian-books/meridian-books/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	events := shared.NewRedisPublisher(redisClient)
	metrics := observability.NewMetrics()

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo, auditLogger, events, journal.ServiceConfig{
		AllowVoidInClosedPeriod: cfg.VoidInClosedPeriod,
	})
	journalHandler := journal.NewHandler(logger, journalService, metrics)

	balancesRepo := balances.NewRepository(pool)
	balancesCache := balances.NewCache(redisClient, cfg.TrialBalanceCacheTTL)
	balancesService := balances.NewService(balancesRepo, balancesCache)
	balancesHandler := balances.NewHandler(logger, balancesService)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, auditLogger, events, balancesService)
	periodsHandler := periods.NewHandler(logger, periodsService, metrics)

	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, auditLogger, events)
	reconHandler := recon.NewHandler(logger, reconService, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		JournalHandler:  journalHandler,
		PeriodsHandler:  periodsHandler,
		BalancesHandler: balancesHandler,
		ReconHandler:    reconHandler,
		JobHandler:      jobHandler,
		Pool:            pool,
		Metrics:         metrics,
	})

	if cfg.WorkerEnabled {
		refreshTask, err := jobs.NewBalancesRefreshTask(jobs.BalancesRefreshPayload{})
		if err != nil {
			logger.Error("build balances refresh task", slog.Any("error", err))
			os.Exit(1)
		}
		worker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
			Logger:    logger,
			Handlers: []jobs.TaskHandler{
				{Type: jobs.TaskBalancesRefresh, Handler: jobs.NewBalancesRefreshHandler(balancesService, metrics, logger)},
				{Type: jobs.TaskGLIntegrity, Handler: jobs.NewGLIntegrityHandler(pool, metrics, logger)},
			},
			Cron: []jobs.CronRegistration{
				{Spec: cfg.BalanceRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
				{Spec: cfg.GLIntegrityCron, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			},
		})
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			if err := worker.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("worker run", slog.Any("error", err))
				stop()
			}
		}()
	}

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
