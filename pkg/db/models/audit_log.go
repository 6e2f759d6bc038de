package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only trail of tenant-visible mutations.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID  uuid.UUID      `gorm:"column:company_id;type:uuid;not null;index"`
	ActorID    *uuid.UUID     `gorm:"column:actor_id;type:uuid"`
	Action     string         `gorm:"column:action;not null"`
	EntityType string         `gorm:"column:entity_type;not null"`
	EntityID   uuid.UUID      `gorm:"column:entity_id;type:uuid;not null"`
	Metadata   datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
