package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph3559/letrents-backend/api/controllers"
	webhookcontrollers "github.com/joseph3559/letrents-backend/api/controllers/webhooks"
	"github.com/joseph3559/letrents-backend/api/middleware"
	"github.com/joseph3559/letrents-backend/internal/cron"
	"github.com/joseph3559/letrents-backend/internal/reconciliation"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/webhooks/guard"
	mpesawebhook "github.com/joseph3559/letrents-backend/internal/webhooks/mpesa"
	paystackwebhook "github.com/joseph3559/letrents-backend/internal/webhooks/paystack"
	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/db"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
	"github.com/joseph3559/letrents-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           *redis.Client
	PaystackService *paystackwebhook.Service
	PaystackGuard   *guard.IdempotencyGuard
	MpesaService    *mpesawebhook.Service
	Settlement      *settlement.Service
	Sweep           *reconciliation.Service
	SweepLock       cron.Lock
	WebhookMetrics  *metrics.WebhookMetrics
	Registry        *prometheus.Registry
}

// NewRouter assembles the HTTP surface: gateway callbacks, the operator
// reconciliation trigger, health probes and metrics.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(
			params.PaystackService,
			cfg.Paystack,
			params.PaystackGuard,
			params.WebhookMetrics,
			logg,
		))
		r.Route("/mpesa", func(r chi.Router) {
			r.Post("/validation", webhookcontrollers.MpesaValidation(params.MpesaService, logg))
			r.Post("/confirmation", webhookcontrollers.MpesaConfirmation(params.MpesaService, params.WebhookMetrics, logg))
		})
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/intents", controllers.CreatePaymentIntent(params.Settlement, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(enums.UserRoleAdmin.String(), logg),
		)
		r.Post("/reconciliation/run", controllers.RunReconciliation(params.Sweep, params.SweepLock, logg))
	})

	return r
}
