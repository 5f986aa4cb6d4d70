package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rafflebox/rafflebox-backend/api/responses"
	"github.com/rafflebox/rafflebox-backend/internal/wallet"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/logger"
)

type batchResponse struct {
	UpdatedCount int                   `json:"updated_count"`
	FailedCount  int                   `json:"failed_count"`
	Skipped      []wallet.SkippedAgent `json:"skipped,omitempty"`
	Failures     []string              `json:"failures,omitempty"`
}

// AdminRecomputeAll re-derives every active agent's balance. Partial failures
// come back in the payload rather than failing the whole request.
func AdminRecomputeAll(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.RecomputeAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := batchResponse{
			UpdatedCount: result.UpdatedCount,
			FailedCount:  result.FailedCount,
			Skipped:      result.Skipped,
		}
		for _, ferr := range multierr.Errors(result.Errors) {
			payload.Failures = append(payload.Failures, ferr.Error())
		}
		responses.WriteSuccess(w, payload)
	}
}

// AdminRecomputeAgent re-derives one agent's balance by ID.
func AdminRecomputeAgent(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid agent id"))
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
