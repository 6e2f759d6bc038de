package products

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

// ProductDTO is the product payload returned to clients.
type ProductDTO struct {
	ID                uuid.UUID  `json:"id"`
	CompanyID         uuid.UUID  `json:"company_id"`
	SKU               string     `json:"sku"`
	Name              string     `json:"name"`
	PriceCents        int64      `json:"price_cents"`
	Currency          string     `json:"currency"`
	StripePriceID     *string    `json:"stripe_price_id,omitempty"`
	InStock           int        `json:"in_stock"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	LowStock          bool       `json:"low_stock"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:                p.ID,
		CompanyID:         p.CompanyID,
		SKU:               p.SKU,
		Name:              p.Name,
		PriceCents:        p.PriceCents,
		Currency:          p.Currency,
		StripePriceID:     p.StripePriceID,
		InStock:           p.InStock,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.IsLowStock(),
		ArchivedAt:        p.ArchivedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
