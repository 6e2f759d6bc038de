package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// Return records goods coming back against an order. A created return always
// points at the stock transaction that put the units back on the shelf.
type Return struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID          uuid.UUID          `gorm:"column:company_id;type:uuid;not null;index"`
	OrderID            uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID          uuid.UUID          `gorm:"column:product_id;type:uuid;not null"`
	Quantity           int                `gorm:"column:quantity;not null"`
	Reason             string             `gorm:"column:reason;not null"`
	StockTransactionID *uuid.UUID         `gorm:"column:stock_transaction_id;type:uuid"`
	Status             enums.ReturnStatus `gorm:"column:status;type:return_status;not null;default:'created'"`
	ActorID            *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (r *Return) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
