package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rafflebox/rafflebox-backend/api/routes"
	"github.com/rafflebox/rafflebox-backend/internal/agents"
	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/internal/referrals"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/db"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/metrics"
	"github.com/rafflebox/rafflebox-backend/pkg/migrate"
	"github.com/rafflebox/rafflebox-backend/pkg/pubsub"
	"github.com/rafflebox/rafflebox-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "wallet-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "wallet-api",
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

	var payoutClient *pubsub.Client
	if cfg.PubSub.Enabled(cfg.GCP) {
		payoutClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := payoutClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "payout publishing disabled, withdrawals will not be forwarded")
	}

	registry := prometheus.NewRegistry()
	walletMetrics := metrics.NewWalletMetrics(registry)

	agentRepo := agents.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	userRepo := referrals.NewRepository(dbClient.DB())

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledgerRepo,
		Cache:    redisClient,
		Logger:   logg,
		ProbeTTL: cfg.Wallet.ProbeCacheTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	resolver, err := referrals.NewResolver(referrals.ResolverParams{
		Users:  userRepo,
		Agents: agentRepo,
		Ledger: ledgerRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create referral resolver", err)
		os.Exit(1)
	}

	var publisher wallet.EventPublisher
	if payoutClient != nil {
		publisher = payoutClient
	}
	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Agents:    agentRepo,
		Ledger:    ledgerSvc,
		Cache:     redisClient,
		Publisher: publisher,
		Metrics:   walletMetrics,
		Logger:    logg,
		Config:    cfg.Wallet,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting wallet api server")

	deps := routes.Dependencies{
		DB:       dbClient,
		Cache:    redisClient,
		Wallet:   walletSvc,
		Referral: resolver,
		Registry: registry,
	}
	if payoutClient != nil {
		deps.Payouts = payoutClient
	}

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, deps),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "wallet api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
