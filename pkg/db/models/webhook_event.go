package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// WebhookEvent keeps one row per processor event id for dedup bookkeeping.
type WebhookEvent struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID string                   `gorm:"column:external_id;not null;uniqueIndex"`
	Type       string                   `gorm:"column:type;not null"`
	Payload    datatypes.JSON           `gorm:"column:payload;type:jsonb;not null"`
	Status     enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:'received'"`
	Attempts   int                      `gorm:"column:attempts;not null;default:0"`
	LastError  *string                  `gorm:"column:last_error"`
	ReceivedAt time.Time                `gorm:"column:received_at;autoCreateTime"`
	AppliedAt  *time.Time               `gorm:"column:applied_at"`
}

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
