package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLineItem snapshots one priced line of a paid checkout session.
type OrderLineItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       *uuid.UUID `gorm:"column:product_id;type:uuid"`
	StripePriceID   string     `gorm:"column:stripe_price_id;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	UnitAmountCents int64      `gorm:"column:unit_amount_cents;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
