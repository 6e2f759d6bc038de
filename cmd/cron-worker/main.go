package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/internal/cron"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	"github.com/angelmondragon/tillstock-backend/internal/products"
	"github.com/angelmondragon/tillstock-backend/pkg/cache"
	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
	"github.com/angelmondragon/tillstock-backend/pkg/migrate"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/tillstock-backend/pkg/stripe"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	// the lease outlives one interval so a slow cycle is never doubled up
	lock, err := cron.NewRedisLock(redisClient, "cron-worker:"+envOrLocal(cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	conn := dbClient.DB()

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	companySvc, err := companies.NewService(companies.ServiceParams{
		Tx:     dbClient,
		Repo:   companies.NewRepository(conn),
		Audit:  auditSvc,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	accountCache, err := cache.New[companies.StripeStatus](redisClient, "stripe_account_status", cfg.Cache.AccountStatusTTL)
	if err != nil {
		return nil, err
	}
	accountCache.WithLogger(logg)
	gateway, err := payments.NewService(payments.ServiceParams{
		Stripe:             payments.NewStripeAPI(stripeClient),
		Companies:          companySvc,
		Products:           products.NewRepository(conn),
		Config:             cfg.Stripe,
		AccountStatusCache: accountCache,
		Metrics:            metrics.NewGatewayMetrics(prometheus.DefaultRegisterer),
		Logger:             logg,
	})
	if err != nil {
		return nil, err
	}

	accountSync, err := cron.NewAccountSyncJob(cron.AccountSyncJobParams{
		Logger:    logg,
		Companies: companySvc,
		Gateway:   gateway,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    outbox.NewRepository(conn),
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(accountSync, retention)
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
