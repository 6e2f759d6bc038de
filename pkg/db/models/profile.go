package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile links an authenticated user to the company they act for.
type Profile struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CompanyID uuid.UUID `gorm:"column:company_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
