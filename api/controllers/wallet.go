package controllers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rafflebox/rafflebox-backend/api/middleware"
	"github.com/rafflebox/rafflebox-backend/api/responses"
	"github.com/rafflebox/rafflebox-backend/api/validators"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	"github.com/rafflebox/rafflebox-backend/pkg/enums"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
	"github.com/rafflebox/rafflebox-backend/pkg/pagination"
)

func agentIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.AgentIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing agent identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid agent identity")
	}
	return id, nil
}

// WalletSummary returns the calling agent's commission summary. The refresh
// query flag bypasses the cache.
func WalletSummary(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := agentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		summary, err := svc.Summary(r.Context(), agentID, refresh)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// WalletRecompute re-derives the calling agent's balance from the ledger.
func WalletRecompute(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := agentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.RecomputeOne(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// WalletTransactions lists the deposits attributed to the calling agent.
// Pages are addressed by the limit and cursor query parameters.
func WalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := agentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		result, err := svc.AttributedTransactions(r.Context(), agentID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type withdrawalBody struct {
	Amount        string `json:"amount" validate:"required"`
	Method        string `json:"method" validate:"required,oneof=gcash bank"`
	AccountName   string `json:"account_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
}

// WalletWithdraw accepts a withdrawal request for the calling agent.
func WalletWithdraw(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := agentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body withdrawalBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.SubmitWithdrawal(r.Context(), wallet.WithdrawalRequest{
			AgentID:       agentID,
			Amount:        body.Amount,
			Method:        enums.PayoutMethod(body.Method),
			AccountName:   body.AccountName,
			AccountNumber: body.AccountNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, receipt)
	}
}
