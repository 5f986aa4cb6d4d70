package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafflebox/rafflebox-backend/api/controllers"
	"github.com/rafflebox/rafflebox-backend/api/middleware"
	"github.com/rafflebox/rafflebox-backend/internal/referrals"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/enums"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	DB       controllers.Pinger
	Cache    controllers.Pinger
	Payouts  controllers.Pinger
	Wallet   wallet.Service
	Referral referrals.Resolver
	Registry *prometheus.Registry
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache, deps.Payouts))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAgent, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletSummary(deps.Wallet, logg))
			r.Post("/recompute", controllers.WalletRecompute(deps.Wallet, logg))
			r.Get("/transactions", controllers.WalletTransactions(deps.Wallet, logg))
			r.Post("/withdrawals", controllers.WalletWithdraw(deps.Wallet, logg))
		})

		r.Route("/referrals", func(r chi.Router) {
			r.Post("/resolve", controllers.ResolveReferral(deps.Referral, logg))
			r.Get("/validate/{code}", controllers.ValidateReferralCode(deps.Referral, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))

		r.Post("/wallet/recompute", controllers.AdminRecomputeAll(deps.Wallet, logg))
		r.Post("/agents/{agentID}/recompute", controllers.AdminRecomputeAgent(deps.Wallet, logg))
	})

	return r
}
