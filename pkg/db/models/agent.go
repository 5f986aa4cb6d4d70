package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Agent is a reseller account earning commission on attributed cash-ins.
//
// BalanceCents is a derived cache, never authoritative: the wallet service
// recomputes it from the ledger and overwrites it unconditionally.
type Agent struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`

	// ReferralCode is the public token attributing deposits to this agent.
	// A case-insensitive unique index guards against codes differing only by case.
	ReferralCode string `gorm:"column:referral_code;type:text;not null;uniqueIndex"`

	// CommissionRateBps is nullable because rows imported from the legacy
	// dashboard only carry the percentage column below.
	CommissionRateBps *int `gorm:"column:commission_rate_bps"`

	// LegacyCommissionPercent predates the basis-points column. It is consulted
	// only when the bps column is unusable and is slated for removal once the
	// data migration lands.
	LegacyCommissionPercent *string `gorm:"column:legacy_commission_percent"`

	BalanceCents  int64          `gorm:"column:balance_cents;not null;default:0"`
	PayoutMethods pq.StringArray `gorm:"column:payout_methods;type:text[]"`
	IsActive      bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
