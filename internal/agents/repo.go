package agents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
)

// Repository manages persistence for agent accounts. The agent rows themselves
// are owned by the external user-management process; this service only reads
// them and overwrites the derived balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Agent, error)
	FindByReferralCodeFold(ctx context.Context, code string) ([]models.Agent, error)
	ForEachActiveBatch(ctx context.Context, batchSize int, fn func(batch []models.Agent) error) error
	UpdateBalance(ctx context.Context, id uuid.UUID, balanceCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an agent repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) FindByReferralCode(ctx context.Context, code string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).
		Where("referral_code = ?", code).
		First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

// FindByReferralCodeFold matches the code case-insensitively. Rows come back in
// a deterministic order so callers that must pick one always pick the same one.
func (r *repository) FindByReferralCodeFold(ctx context.Context, code string) ([]models.Agent, error) {
	var agents []models.Agent
	if err := r.db.WithContext(ctx).
		Where("LOWER(referral_code) = LOWER(?)", code).
		Order("created_at ASC, id ASC").
		Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// ForEachActiveBatch streams active agents to fn in batches of batchSize so a
// fleet recompute never loads the whole table at once. Returning an error from
// fn stops the iteration.
func (r *repository) ForEachActiveBatch(ctx context.Context, batchSize int, fn func(batch []models.Agent) error) error {
	var agents []models.Agent
	return r.db.WithContext(ctx).
		Where("is_active = ?", true).
		FindInBatches(&agents, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(agents)
		}).Error
}

// UpdateBalance overwrites the persisted balance unconditionally. Recomputation
// always re-derives from the full ledger, so last-writer-wins is safe here.
func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, balanceCents int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ?", id).
		Update("balance_cents", balanceCents)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
