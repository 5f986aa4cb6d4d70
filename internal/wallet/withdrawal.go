package wallet

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rafflebox/rafflebox-backend/pkg/enums"
	pkgerrors "github.com/rafflebox/rafflebox-backend/pkg/errors"
	"github.com/rafflebox/rafflebox-backend/pkg/money"
)

// WithdrawalRequest is an agent's request to pay out accrued commission.
type WithdrawalRequest struct {
	AgentID       uuid.UUID          `json:"agent_id"`
	Amount        string             `json:"amount"`
	Method        enums.PayoutMethod `json:"method"`
	AccountName   string             `json:"account_name"`
	AccountNumber string             `json:"account_number"`
}

// WithdrawalReceipt confirms a request was accepted and handed to the payout
// workflow. Settlement happens outside this service.
type WithdrawalReceipt struct {
	ReferenceID uuid.UUID          `json:"reference_id"`
	AgentID     uuid.UUID          `json:"agent_id"`
	AmountCents int64              `json:"amount_cents"`
	Method      enums.PayoutMethod `json:"method"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// validate checks every business rule and reports all violations at once, so
// the agent can fix their form in a single round trip.
func (r WithdrawalRequest) validate(minCents, availableCents int64) (int64, error) {
	var violations []string

	amountCents := int64(0)
	amount, err := money.ParseAmount(r.Amount)
	if err != nil {
		violations = append(violations, "amount must be a decimal number")
	} else {
		amountCents = money.ToMinorUnits(amount)
		if amountCents <= 0 {
			violations = append(violations, "amount must be greater than zero")
		}
		if amountCents < minCents {
			violations = append(violations, "amount is below the minimum withdrawal of "+money.FormatMinorUnits(minCents))
		}
		if amountCents > availableCents {
			violations = append(violations, "amount exceeds the available commission of "+money.FormatMinorUnits(availableCents))
		}
	}

	if len(strings.TrimSpace(r.AccountName)) <= 1 {
		violations = append(violations, "account_name must be longer than 1 character")
	}
	if len(strings.TrimSpace(r.AccountNumber)) <= 3 {
		violations = append(violations, "account_number must be longer than 3 characters")
	}
	if !r.Method.IsValid() {
		violations = append(violations, "method must be one of: gcash, bank")
	}

	if len(violations) > 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal request rejected").
			WithDetails(violations)
	}
	return amountCents, nil
}
