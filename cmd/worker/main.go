package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/rotasales/rotasales/internal/app"
	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	purgeTask, err := jobs.NewSyncLogPurgeTask(cfg.SyncLogRetention)
	if err != nil {
		logger.Error("build sync log purge task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewOverdueCreditScanTask(30)
	if err != nil {
		logger.Error("build overdue credit task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncLogPurge, Handler: jobs.NewSyncLogPurgeHandler(pool, logger)},
			{Type: jobs.TaskOverdueCreditScan, Handler: jobs.NewOverdueCreditScanHandler(pool, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 1", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
