package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rafflebox/rafflebox-backend/pkg/enums"
)

// CashInTransaction is a deposit made by an end user. Once approved the row is
// immutable; status transitions happen in a separate approval workflow.
//
// The referral attribution has lived in four places over the lifetime of the
// platform: the current referral_code column, the misspelled referal_code
// column, and the same two keys inside the metadata document written by older
// clients. The ledger query layer reads all of them and deduplicates by ID.
type CashInTransaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID     uuid.UUID               `gorm:"column:owner_id;type:uuid;not null;index"`
	AmountCents int64                   `gorm:"column:amount_cents;not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending';index"`

	ReferralCode *string `gorm:"column:referral_code;index"`
	// ReferalCode is the legacy misspelled column, kept until the backfill completes.
	ReferalCode *string `gorm:"column:referal_code"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
