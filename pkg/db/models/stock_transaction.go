package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// StockTransaction is the append-only ledger row written for every stock change.
type StockTransaction struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID      uuid.UUID         `gorm:"column:company_id;type:uuid;not null;index"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index"`
	Delta          int               `gorm:"column:delta;not null"`
	Reason         enums.StockReason `gorm:"column:reason;type:stock_reason;not null"`
	IdempotencyKey *string           `gorm:"column:idempotency_key;uniqueIndex:ux_stock_transactions_idempotency_key"`
	ActorID        *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Note           *string           `gorm:"column:note"`
	BalanceAfter   int               `gorm:"column:balance_after;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
