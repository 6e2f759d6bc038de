package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

const webhookExternalIDConstraint = "webhook_events_external_id_key"

// Repository stores one row per processor event id.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Claim inserts the event row, or returns the row already stored under the
// same external id.
func (r *Repository) Claim(ctx context.Context, externalID, eventType string, payload []byte) (*models.WebhookEvent, bool, error) {
	row := &models.WebhookEvent{
		ExternalID: externalID,
		Type:       eventType,
		Payload:    datatypes.JSON(payload),
		Status:     enums.WebhookEventReceived,
	}
	err := r.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return row, false, nil
	}
	if !db.IsUniqueViolation(err, webhookExternalIDConstraint) && !db.IsUniqueViolation(err, "webhook_events.external_id") {
		return nil, false, err
	}
	existing, findErr := r.FindByExternalID(ctx, externalID)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.WebhookEvent, error) {
	var row models.WebhookEvent
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Finish records the outcome of one processing attempt.
func (r *Repository) Finish(ctx context.Context, id uuid.UUID, status enums.WebhookEventStatus, lastError *string) error {
	updates := map[string]any{
		"status":     status,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastError,
	}
	if status == enums.WebhookEventApplied {
		updates["applied_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
