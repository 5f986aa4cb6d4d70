package referrals

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
)

// Repository reads end-user attribution fields and performs the single
// first-write of the structured referral document.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.EndUser, error)
	SetStructuredReferral(ctx context.Context, id uuid.UUID, code string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an end-user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EndUser, error) {
	var user models.EndUser
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetStructuredReferral writes `{"code": ...}` into the referral document,
// guarded so a document that already exists is never overwritten. Returns
// whether this call performed the write.
func (r *repository) SetStructuredReferral(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	doc, err := json.Marshal(structuredReferral{Code: code})
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.EndUser{}).
		Where("id = ?", id).
		Where("referral IS NULL OR referral = ?", "null").
		Update("referral", datatypes.JSON(doc))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type structuredReferral struct {
	Code string `json:"code"`
}

// structuredCode pulls the code out of the referral document, tolerating
// missing, null, or malformed documents.
func structuredCode(user *models.EndUser) string {
	if user == nil || len(user.Referral) == 0 {
		return ""
	}
	var doc structuredReferral
	if err := json.Unmarshal(user.Referral, &doc); err != nil {
		return ""
	}
	return doc.Code
}
