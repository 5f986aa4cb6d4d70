package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EndUser is a player account owned by the external user store. This service
// only reads the referral attribution fields and, for a user with no fixed
// attribution yet, writes the structured referral document exactly once.
type EndUser struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`

	// Referral is the structured attribution document, `{"code": "..."}`.
	Referral datatypes.JSON `gorm:"column:referral;type:jsonb"`
	// ReferralCode is the flat legacy attribution column.
	ReferralCode *string `gorm:"column:referral_code"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
