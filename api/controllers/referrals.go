package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflebox/rafflebox-backend/api/responses"
	"github.com/rafflebox/rafflebox-backend/api/validators"
	"github.com/rafflebox/rafflebox-backend/internal/referrals"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
)

type resolveBody struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Code   string `json:"code"`
}

// ResolveReferral answers which referral code a user's deposits belong to,
// recording the supplied code when the user has no attribution yet.
func ResolveReferral(resolver referrals.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resolveBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		code, err := resolver.Resolve(r.Context(), userID, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"referral_code": code})
	}
}

// ValidateReferralCode checks a code against the agent roster.
func ValidateReferralCode(resolver referrals.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := resolver.ValidateCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"referral_code": agent.ReferralCode,
			"display_name":  agent.DisplayName,
		})
	}
}
