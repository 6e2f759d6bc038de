package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

// Repository provides tenant-scoped product lookups. Every query filters by
// company id; a product owned by another tenant is indistinguishable from a
// missing one.
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

// FindByID loads a product in the tenant, archived rows included.
func (r *Repository) FindByID(ctx context.Context, companyID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", productID, companyID).
		First(&product).Error
	if err != nil {
		return nil, notFound(err, "product not found")
	}
	return &product, nil
}

// FindActiveByID loads a non-archived product in the tenant.
func (r *Repository) FindActiveByID(ctx context.Context, companyID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ? AND archived_at IS NULL", productID, companyID).
		First(&product).Error
	if err != nil {
		return nil, notFound(err, "product not found")
	}
	return &product, nil
}

// FindByPriceID resolves the processor price reference to a live product.
func (r *Repository) FindByPriceID(ctx context.Context, companyID uuid.UUID, priceID string) (*models.Product, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price reference required")
	}
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND stripe_price_id = ? AND archived_at IS NULL", companyID, priceID).
		First(&product).Error
	if err != nil {
		return nil, notFound(err, "no product for price "+priceID)
	}
	return &product, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
