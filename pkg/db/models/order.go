package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is the local record of a paid checkout session.
type Order struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID           uuid.UUID       `gorm:"column:company_id;type:uuid;not null;index"`
	StripeSessionID     string          `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	CustomerEmail       *string         `gorm:"column:customer_email"`
	AmountTotalCents    int64           `gorm:"column:amount_total_cents;not null"`
	ApplicationFeeCents int64           `gorm:"column:application_fee_cents;not null;default:0"`
	Currency            string          `gorm:"column:currency;not null"`
	LineItems           []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
