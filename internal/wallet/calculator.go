package wallet

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rafflebox/rafflebox-backend/internal/ledger"
	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
)

// DefaultRateBps is the commission rate applied when an agent row carries no
// usable rate of its own. 1000 basis points is 10 percent.
const DefaultRateBps = 1000

const maxRateBps = 10000

// Summary is the derived commission state for one agent.
type Summary struct {
	AgentID              uuid.UUID                `json:"agent_id"`
	ReferralCode         string                   `json:"referral_code"`
	TransactionCount     int                      `json:"transaction_count"`
	UniqueOwnerCount     int                      `json:"unique_owner_count"`
	TotalAttributedCents int64                    `json:"total_attributed_cents"`
	RateBps              int                      `json:"rate_bps"`
	CommissionCents      int64                    `json:"commission_cents"`
	Skipped              []ledger.SkippedStrategy `json:"skipped,omitempty"`
}

// ClampRateBps forces a rate into the representable range. Out-of-range rates
// come from hand-edited rows and must never produce negative or amplified
// commission.
func ClampRateBps(bps int) int {
	if bps < 0 {
		return 0
	}
	if bps > maxRateBps {
		return maxRateBps
	}
	return bps
}

// CommissionCents computes the commission on a total, rounding half up.
// All arithmetic stays in integers so repeated recomputes are bit-identical.
func CommissionCents(totalCents int64, rateBps int) int64 {
	clamped := int64(ClampRateBps(rateBps))
	return (totalCents*clamped + 5000) / 10000
}

// RateBpsFor resolves the commission rate for an agent. The basis-points
// column wins when present; rows imported from the legacy dashboard fall back
// to the percentage string; everything else gets the configured default.
func RateBpsFor(agent *models.Agent, defaultBps int) int {
	if defaultBps <= 0 {
		defaultBps = DefaultRateBps
	}
	if agent == nil {
		return ClampRateBps(defaultBps)
	}
	if agent.CommissionRateBps != nil {
		return ClampRateBps(*agent.CommissionRateBps)
	}
	if agent.LegacyCommissionPercent != nil {
		if bps, ok := bpsFromPercent(*agent.LegacyCommissionPercent); ok {
			return ClampRateBps(bps)
		}
	}
	return ClampRateBps(defaultBps)
}

func bpsFromPercent(raw string) (int, bool) {
	percent, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	bps := percent.Mul(decimal.NewFromInt(100)).Round(0)
	return int(bps.IntPart()), true
}

// Summarize folds an attribution result into a commission summary.
func Summarize(agent *models.Agent, result ledger.AttributedResult, rateBps int) Summary {
	owners := make(map[uuid.UUID]struct{}, len(result.Transactions))
	for _, txn := range result.Transactions {
		owners[txn.OwnerID] = struct{}{}
	}
	total := result.TotalCents()
	summary := Summary{
		TransactionCount:     len(result.Transactions),
		UniqueOwnerCount:     len(owners),
		TotalAttributedCents: total,
		RateBps:              ClampRateBps(rateBps),
		CommissionCents:      CommissionCents(total, rateBps),
		Skipped:              result.Skipped,
	}
	if agent != nil {
		summary.AgentID = agent.ID
		summary.ReferralCode = agent.ReferralCode
	}
	return summary
}
