package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

const idempotencyConstraint = "ux_stock_transactions_idempotency_key"

// Repository issues the conditional stock updates and ledger writes.
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

// AdjustInStock applies delta in a single statement guarded by tenant,
// archive state and, for negative deltas, the non-negative floor. It returns
// the number of rows changed.
func (r *Repository) AdjustInStock(ctx context.Context, companyID, productID uuid.UUID, delta int) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND company_id = ? AND archived_at IS NULL", productID, companyID)
	if delta < 0 {
		q = q.Where("in_stock >= ?", -delta)
	}
	res := q.Update("in_stock", gorm.Expr("in_stock + ?", delta))
	return res.RowsAffected, res.Error
}

func (r *Repository) FindProduct(ctx context.Context, companyID, productID uuid.UUID, activeOnly bool) (*models.Product, error) {
	q := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", productID, companyID)
	if activeOnly {
		q = q.Where("archived_at IS NULL")
	}
	var product models.Product
	if err := q.First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, row *models.StockTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// FindByIdempotencyKey returns nil when the key has not been used.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.StockTransaction, error) {
	var row models.StockTransaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListTransactions returns the ledger for one product, oldest first. A
// non-positive limit returns every row.
func (r *Repository) ListTransactions(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]models.StockTransaction, error) {
	var rows []models.StockTransaction
	q := r.db.WithContext(ctx).
		Where("company_id = ? AND product_id = ?", companyID, productID).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
