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

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/counsel-coordinator/internal/api"
	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/db"
	"github.com/hackgods/counsel-coordinator/internal/logs"
	"github.com/hackgods/counsel-coordinator/internal/notify"
	redisclient "github.com/hackgods/counsel-coordinator/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}

	logger := logs.New(cfg, "api-server")
	slog.SetDefault(logger)
	logger.Info("api-server starting up", "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Error("api-server stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("api-server shut down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if err := db.Migrate(ctx, pgPool); err != nil {
		return err
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "err", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	bus := redisclient.NewChangeBus(rdb, logger)
	sink := notify.NewSink(repo, bus, logger)

	svc := appointment.NewService(appointment.Deps{
		Store:     repo,
		Directory: repo,
		Locker:    redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Notifier:  sink,
		Changes:   bus,
		Logger:    logger,
	}, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Notifications: sink,
		Changes:       bus,
		Health:        api.NewHealthHandler(pgPool, bus, cfg.Env, version),
		Logger:        logger,
		PollInterval:  cfg.PollInterval,
		ScanWindow:    cfg.GateScanWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
