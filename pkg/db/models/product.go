package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a sellable item. InStock is only ever written by the stock ledger.
type Product struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID         uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index;uniqueIndex:ux_products_company_price"`
	SKU               string     `gorm:"column:sku;not null"`
	Name              string     `gorm:"column:name;not null"`
	PriceCents        int64      `gorm:"column:price_cents;not null"`
	Currency          string     `gorm:"column:currency;not null;default:'usd'"`
	StripePriceID     *string    `gorm:"column:stripe_price_id;uniqueIndex:ux_products_company_price"`
	InStock           int        `gorm:"column:in_stock;not null;default:0;check:in_stock >= 0"`
	LowStockThreshold int        `gorm:"column:low_stock_threshold;not null;default:0"`
	ArchivedAt        *time.Time `gorm:"column:archived_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsLowStock reports whether the product is at or under its threshold.
func (p *Product) IsLowStock() bool {
	return p.LowStockThreshold > 0 && p.InStock <= p.LowStockThreshold
}
