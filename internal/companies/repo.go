package companies

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

// Repository persists company rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &company, nil
}

func (r *Repository) FindByStripeAccountID(ctx context.Context, accountID string) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID).First(&company).Error; err != nil {
		return nil, lookupErr(err)
	}
	return &company, nil
}

func (r *Repository) UpdatePlatformFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ?", id).
		Update("platform_fee_percent", fee)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	return nil
}

// SetStripeAccountIfEmpty stores accountID only when the company has none yet.
// It reports false when another writer got there first.
func (r *Repository) SetStripeAccountIfEmpty(ctx context.Context, id uuid.UUID, accountID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ? AND stripe_account_id IS NULL", id).
		Update("stripe_account_id", accountID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) UpdateStripeStatus(ctx context.Context, id uuid.UUID, status StripeStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"charges_enabled":     status.ChargesEnabled,
			"payouts_enabled":     status.PayoutsEnabled,
			"details_submitted":   status.DetailsSubmitted,
			"onboarding_complete": status.OnboardingComplete(),
		}).Error
}

// ListConnected pages through companies that have a connected account, in id
// order starting after the given cursor.
func (r *Repository) ListConnected(ctx context.Context, after uuid.UUID, limit int) ([]models.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("stripe_account_id IS NOT NULL")
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var rows []models.Company
	if err := q.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func lookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
}
