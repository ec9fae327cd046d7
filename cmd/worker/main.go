package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Manulynx/gestores/internal/app"
	"github.com/Manulynx/gestores/internal/cart"
	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/orders"
	"github.com/Manulynx/gestores/internal/platform/cache"
	"github.com/Manulynx/gestores/internal/platform/db"
	"github.com/Manulynx/gestores/internal/stock"
	"github.com/Manulynx/gestores/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	cartStore := cart.NewStore(redisClient, catalogService, cfg.SessionTTL)

	// The worker cancels orders but never places them, so no scheduler
	// is wired into the service.
	ledger := stock.NewLedger()
	ordersRepo := orders.NewRepository(pool, ledger)
	ordersService := orders.NewService(logger, ordersRepo, cartStore, nil)

	autoCancel := jobs.NewAutoCancelHandler(logger, ordersService)
	sweep := jobs.NewSweepHandler(logger, ordersService, cfg.OrderSweepThreshold)

	sweepTask, err := jobs.NewOrderSweepTask(time.Now())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOrderAutoCancel, Handler: autoCancel.Handle},
			{Type: jobs.TaskOrderSweep, Handler: sweep.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OrderSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
