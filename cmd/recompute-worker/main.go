package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/rafflebox/rafflebox-backend/internal/agents"
	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/db"
	"github.com/rafflebox/rafflebox-backend/pkg/instance"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/metrics"
	"github.com/rafflebox/rafflebox-backend/pkg/migrate"
	"github.com/rafflebox/rafflebox-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "recompute-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "recompute-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	walletMetrics := metrics.NewWalletMetrics(prometheus.DefaultRegisterer)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(dbClient.DB()),
		Cache:    redisClient,
		Logger:   logg,
		ProbeTTL: cfg.Wallet.ProbeCacheTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Agents:  agents.NewRepository(dbClient.DB()),
		Ledger:  ledgerSvc,
		Cache:   redisClient,
		Metrics: walletMetrics,
		Logger:  logg,
		Config:  cfg.Wallet,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.ID(),
		"interval": cfg.Wallet.RecomputeInterval.String(),
	})
	logg.Info(ctx, "starting recompute worker")

	if err := run(ctx, logg, walletSvc, cfg.Wallet.RecomputeInterval); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "recompute worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "recompute worker shutting down gracefully")
}

// run recomputes every balance once at startup and then on every tick until
// the context is cancelled.
func run(ctx context.Context, logg *logger.Logger, svc wallet.Service, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	runOnce(ctx, logg, svc)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce(ctx, logg, svc)
		}
	}
}

func runOnce(ctx context.Context, logg *logger.Logger, svc wallet.Service) {
	result, err := svc.RecomputeAll(ctx)
	if err != nil {
		logg.Error(ctx, "recompute run failed", err)
		return
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"updated": result.UpdatedCount,
		"skipped": len(result.Skipped),
		"failed":  result.FailedCount,
	})
	if result.FailedCount > 0 {
		for _, ferr := range multierr.Errors(result.Errors) {
			logg.Error(runCtx, "agent recompute failed in batch", ferr)
		}
		logg.Warn(runCtx, "recompute run finished with failures")
		return
	}
	logg.Info(runCtx, "recompute run finished")
}
