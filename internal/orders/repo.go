package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

const sessionConstraint = "orders.stripe_session_id"

// Repository persists orders and their line items.
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

// Create inserts the order together with its line items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindBySessionID returns nil when no order exists for the session.
func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("stripe_session_id = ?", sessionID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByID loads a tenant's order with line items; nil when absent.
func (r *Repository) FindByID(ctx context.Context, companyID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ? AND company_id = ?", orderID, companyID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate is FindByID with a row lock on the order, serializing
// writers that derive state from its lines.
func (r *Repository) FindByIDForUpdate(ctx context.Context, companyID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("LineItems").
		Where("id = ? AND company_id = ?", orderID, companyID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LinkLineProduct sets product_id on a line that has none yet. It reports
// false when the line was already linked.
func (r *Repository) LinkLineProduct(ctx context.Context, lineID, productID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ? AND product_id IS NULL", lineID).
		Update("product_id", productID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
