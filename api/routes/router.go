package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tillstock-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/tillstock-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tillstock-backend/api/middleware"
	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
	"github.com/angelmondragon/tillstock-backend/pkg/auth"
	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
	"github.com/angelmondragon/tillstock-backend/pkg/redis"
)

type tenantResolver interface {
	ResolveCompanyID(ctx context.Context, principal *tenancy.Principal) (uuid.UUID, error)
}

type redisStore interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
}

// Dependencies carries everything the HTTP surface is wired to.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    redisStore
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	Resolver tenantResolver

	Checkout controllers.CheckoutService
	Connect  controllers.ConnectService
	Fees     controllers.PlatformFeeService
	Ledger   controllers.StockLedger
	Returns  controllers.ReturnsService
	Webhooks webhookcontrollers.PaymentWebhookService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/payment", webhookcontrollers.PaymentWebhook(deps.Webhooks, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(auth.NewVerifier(cfg.JWT), logg))
		r.Use(middleware.Tenant(deps.Resolver, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/checkout/session", controllers.CheckoutCreateSession(deps.Checkout, logg))
		r.Get("/checkout/session", controllers.CheckoutGetSession(deps.Checkout, logg))

		r.Post("/restocks", controllers.StockRestock(deps.Ledger, logg))
		r.Get("/products/{productId}/transactions", controllers.StockTransactions(deps.Ledger, logg))

		r.Post("/returns", controllers.ReturnCreate(deps.Returns, logg))
		r.Get("/returns", controllers.ReturnList(deps.Returns, logg))

		r.Get("/platform-fee", controllers.PlatformFeeGet(deps.Fees, logg))
		r.Put("/platform-fee", controllers.PlatformFeeUpdate(deps.Fees, logg))

		r.Post("/stripe/connected-account", controllers.StripeCreateConnectedAccount(deps.Connect, logg))
		r.Post("/stripe/onboarding-link", controllers.StripeOnboardingLink(deps.Connect, logg))
		r.Get("/stripe-status", controllers.StripeStatus(deps.Connect, logg))
	})

	return r
}
