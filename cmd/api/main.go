package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tillstock-backend/api"
	"github.com/angelmondragon/tillstock-backend/api/routes"
	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/internal/orders"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	"github.com/angelmondragon/tillstock-backend/internal/products"
	"github.com/angelmondragon/tillstock-backend/internal/returns"
	"github.com/angelmondragon/tillstock-backend/internal/stock"
	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
	stripewebhook "github.com/angelmondragon/tillstock-backend/internal/webhooks/stripe"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	deps, err := wire(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := api.NewServer(addr, routes.NewRouter(cfg, logg, deps))
	if err := api.Serve(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func wire(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *pkgstripe.Client) (routes.Dependencies, error) {
	conn := dbClient.DB()
	reg := prometheus.DefaultRegisterer

	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, err
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := products.NewRepository(conn)

	ledger, err := stock.NewLedger(stock.LedgerParams{
		Tx:      dbClient,
		Repo:    stock.NewRepository(conn),
		Audit:   auditSvc,
		Outbox:  outboxSvc,
		Metrics: metrics.NewStockMetrics(reg),
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	companySvc, err := companies.NewService(companies.ServiceParams{
		Tx:     dbClient,
		Repo:   companies.NewRepository(conn),
		Audit:  auditSvc,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Tx:     dbClient,
		Repo:   orders.NewRepository(conn),
		Audit:  auditSvc,
		Outbox: outboxSvc,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Tx:       dbClient,
		Repo:     returns.NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Products: productRepo,
		Stock:    ledger,
		Audit:    auditSvc,
		Outbox:   outboxSvc,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	accountCache, err := cache.New[companies.StripeStatus](redisClient, "stripe_account_status", cfg.Cache.AccountStatusTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	accountCache.WithLogger(logg)
	sessionCache, err := cache.New[payments.SessionDetail](redisClient, "checkout_session", cfg.Cache.CheckoutSessionTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	sessionCache.WithLogger(logg)

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Stripe:             payments.NewStripeAPI(stripeClient),
		Companies:          companySvc,
		Products:           productRepo,
		Config:             cfg.Stripe,
		AccountStatusCache: accountCache,
		SessionCache:       sessionCache,
		Metrics:            metrics.NewGatewayMetrics(reg),
		Logger:             logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:  stripeClient,
		Repo:      stripewebhook.NewRepository(conn),
		Gateway:   paymentSvc,
		Products:  productRepo,
		Stock:     ledger,
		Orders:    orderSvc,
		Companies: companySvc,
		Metrics:   metrics.NewWebhookMetrics(reg),
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	resolver, err := tenancy.NewResolver(logg, tenancy.ClaimsStrategy{}, tenancy.NewProfileStrategy(conn))
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:       dbClient,
		Redis:    redisClient,
		Gatherer: prometheus.DefaultGatherer,
		HTTP:     metrics.NewHTTPMetrics(reg),
		Resolver: resolver,
		Checkout: paymentSvc,
		Connect:  paymentSvc,
		Fees:     companySvc,
		Ledger:   ledger,
		Returns:  returnSvc,
		Webhooks: webhookSvc,
	}, nil
}
