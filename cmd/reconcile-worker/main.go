package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/db"
	"github.com/hackgods/counsel-coordinator/internal/logs"
	redisclient "github.com/hackgods/counsel-coordinator/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}

	logger := logs.New(cfg, "reconcile-worker")
	slog.SetDefault(logger)
	logger.Info("reconcile-worker starting up", "schedule", cfg.ReconcileSchedule)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		logger.Error("redis connection error", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "err", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(appointment.Deps{
		Store:     repo,
		Directory: repo,
		Locker:    redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Changes:   redisclient.NewChangeBus(rdb, logger),
		Logger:    logger,
	}, cfg)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() { runOnce(rootCtx, svc, logger) }); err != nil {
		logger.Error("invalid RECONCILE_SCHEDULE", "schedule", cfg.ReconcileSchedule, "err", err)
		os.Exit(1)
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping reconcile worker")
	<-c.Stop().Done()
}

// runOnce reconciles every ledger day from today on.
func runOnce(ctx context.Context, svc *appointment.Service, logger *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	today := start.In(svc.Location()).Format(appointment.DateLayout)

	report, err := svc.ReconcileAll(runCtx, today)
	logger.Info("reconcile run finished",
		"from", today,
		"days", report.Days,
		"corrected", report.Corrected,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	if err != nil {
		logger.Error("reconcile run error", "err", err)
	}
}
