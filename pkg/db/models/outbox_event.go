package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// OutboxEvent is one queued domain event. Rows are written in the same
// transaction as the change they describe and drained by the publisher.
// A row whose AttemptCount reached the publisher's ceiling is parked.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       datatypes.JSON            `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (o *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

func (o OutboxEvent) Published() bool { return o.PublishedAt != nil }

// Parked reports whether the publisher has given up on the row.
func (o OutboxEvent) Parked(maxAttempts int) bool {
	return !o.Published() && maxAttempts > 0 && o.AttemptCount >= maxAttempts
}
