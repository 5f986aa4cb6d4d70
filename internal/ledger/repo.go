package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
	"github.com/rafflebox/rafflebox-backend/pkg/enums"
)

// Capabilities describes which attribution fields exist in the underlying
// store. The referral column was renamed and relocated over the lifetime of
// the platform, so deployments differ.
type Capabilities struct {
	LegacyReferralColumn bool `json:"legacy_referral_column"`
	MetadataColumn       bool `json:"metadata_column"`
}

// Repository reads the cash-in ledger. All reads are scoped to approved
// transactions; status transitions belong to the approval workflow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Probe(ctx context.Context) (Capabilities, error)
	ListApprovedByColumns(ctx context.Context, code string, includeLegacy bool) ([]models.CashInTransaction, error)
	ListApprovedByMetadataKey(ctx context.Context, key, code string) ([]models.CashInTransaction, error)
	ListApprovedByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.CashInTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Probe discovers which optional attribution fields the store carries so the
// query plan can skip strategies that would fail.
func (r *repository) Probe(ctx context.Context) (Capabilities, error) {
	migrator := r.db.WithContext(ctx).Migrator()
	caps := Capabilities{
		LegacyReferralColumn: migrator.HasColumn(&models.CashInTransaction{}, "referal_code"),
		MetadataColumn:       migrator.HasColumn(&models.CashInTransaction{}, "metadata"),
	}
	return caps, nil
}

func (r *repository) ListApprovedByColumns(ctx context.Context, code string, includeLegacy bool) ([]models.CashInTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.TransactionStatusApproved)
	if includeLegacy {
		query = query.Where("referral_code = ? OR referal_code = ?", code, code)
	} else {
		query = query.Where("referral_code = ?", code)
	}

	var txns []models.CashInTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListApprovedByMetadataKey(ctx context.Context, key, code string) ([]models.CashInTransaction, error) {
	var txns []models.CashInTransaction
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.TransactionStatusApproved).
		Where(datatypes.JSONQuery("metadata").Equals(code, key)).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListApprovedByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.CashInTransaction, error) {
	var txns []models.CashInTransaction
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Where("status = ?", enums.TransactionStatusApproved).
		Order("created_at ASC, id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
