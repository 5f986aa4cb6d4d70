package controllers

import (
	"context"
	"net/http"

	"github.com/rafflebox/rafflebox-backend/api/responses"
	"github.com/rafflebox/rafflebox-backend/pkg/config"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
)

const envHeader = "X-RaffleBox-Env"

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness. The database is required; cache and payout
// transport are reported but do not fail the check.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, cache, payouts Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx := r.Context()

		statuses := map[string]string{"status": "ready"}
		ready := true

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				logg.Error(ctx, "database ping failed", err)
				statuses["database"] = "down"
				ready = false
			} else {
				statuses["database"] = "up"
			}
		}
		statuses["cache"] = optionalStatus(ctx, logg, cache, "cache")
		statuses["payouts"] = optionalStatus(ctx, logg, payouts, "payouts")

		if !ready {
			statuses["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, statuses)
			return
		}
		responses.WriteSuccess(w, statuses)
	}
}

func optionalStatus(ctx context.Context, logg *logger.Logger, p Pinger, name string) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "dependency", name), "dependency ping failed")
		return "down"
	}
	return "up"
}
