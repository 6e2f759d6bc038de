package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

const (
	ActionStockDecrement       = "stock.decrement"
	ActionStockIncrement       = "stock.increment"
	ActionReturnCreated        = "return.created"
	ActionPlatformFeeUpdated   = "company.platform_fee_updated"
	ActionStripeAccountCreated = "company.stripe_account_created"
	ActionStripeStatusSynced   = "company.stripe_status_synced"
	ActionOrderRecorded        = "order.recorded"
)

const (
	EntityProduct = "product"
	EntityReturn  = "return"
	EntityCompany = "company"
	EntityOrder   = "order"
)

// Entry describes one audited mutation.
type Entry struct {
	CompanyID  uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Metadata   map[string]any
}

// Recorder appends audit rows inside the caller's transaction so the trail
// commits or rolls back together with the change it describes.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &Service{repo: repo}, nil
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("audit entries must be written in a transaction")
	}
	if entry.CompanyID == uuid.Nil {
		return errors.New("audit entry company id required")
	}
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == uuid.Nil {
		return fmt.Errorf("audit entry incomplete: action=%q entity=%q", entry.Action, entry.EntityType)
	}

	row := &models.AuditLog{
		CompanyID:  entry.CompanyID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(raw)
	}
	return s.repo.WithTx(tx).Create(ctx, row)
}
