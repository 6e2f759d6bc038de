package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

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

func (r *Repository) Create(ctx context.Context, row *models.Return) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ReturnedQuantity sums created returns of productID against orderID.
func (r *Repository) ReturnedQuantity(ctx context.Context, orderID, productID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Return{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("order_id = ? AND product_id = ? AND status = ?", orderID, productID, enums.ReturnStatusCreated).
		Scan(&total).Error
	return int(total), err
}

func (r *Repository) ListByOrder(ctx context.Context, companyID, orderID uuid.UUID) ([]models.Return, error) {
	var rows []models.Return
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND order_id = ?", companyID, orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
