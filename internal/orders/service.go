package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

// LineInput is one paid line as reported by the processor.
type LineInput struct {
	ProductID       *uuid.UUID
	PriceID         string
	Quantity        int
	UnitAmountCents int64
}

// RecordInput describes a paid checkout session.
type RecordInput struct {
	CompanyID           uuid.UUID
	SessionID           string
	CustomerEmail       string
	AmountTotalCents    int64
	ApplicationFeeCents int64
	Currency            string
	Lines               []LineInput
}

type ServiceParams struct {
	Tx     db.TxRunner
	Repo   *Repository
	Audit  audit.Recorder
	Outbox outbox.Emitter
}

type Service struct {
	tx     db.TxRunner
	repo   *Repository
	audit  audit.Recorder
	outbox outbox.Emitter
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{tx: params.Tx, repo: params.Repo, audit: params.Audit, outbox: params.Outbox}, nil
}

// RecordFromSession stores the order for a paid session once. Replays return
// the existing order with created=false, after linking any line that was
// unlinked before and has now been applied.
func (s *Service) RecordFromSession(ctx context.Context, input RecordInput) (*models.Order, bool, error) {
	if input.CompanyID == uuid.Nil || strings.TrimSpace(input.SessionID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "company id and session id are required")
	}

	existing, err := s.repo.FindBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if existing != nil {
		if err := s.linkApplied(ctx, existing, input.Lines); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	order := &models.Order{
		CompanyID:           input.CompanyID,
		StripeSessionID:     input.SessionID,
		AmountTotalCents:    input.AmountTotalCents,
		ApplicationFeeCents: input.ApplicationFeeCents,
		Currency:            strings.ToLower(input.Currency),
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		order.CustomerEmail = &email
	}
	for _, line := range input.Lines {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ProductID:       line.ProductID,
			StripePriceID:   line.PriceID,
			Quantity:        line.Quantity,
			UnitAmountCents: line.UnitAmountCents,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			CompanyID:  order.CompanyID,
			Action:     audit.ActionOrderRecorded,
			EntityType: audit.EntityOrder,
			EntityID:   order.ID,
			Metadata:   map[string]any{"stripe_session_id": order.StripeSessionID},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventOrderRecorded,
			AggregateID: order.ID,
			Producer:    &outbox.Producer{CompanyID: order.CompanyID, Component: "stripe_webhook"},
			Data: payloads.OrderRecordedEvent{
				CompanyID:           order.CompanyID,
				OrderID:             order.ID,
				StripeSessionID:     order.StripeSessionID,
				AmountTotalCents:    order.AmountTotalCents,
				ApplicationFeeCents: order.ApplicationFeeCents,
				Currency:            order.Currency,
				LineItemCount:       len(order.LineItems),
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, sessionConstraint) || db.IsUniqueViolation(err, "orders_stripe_session_id_key") {
			winner, findErr := s.repo.FindBySessionID(ctx, input.SessionID)
			if findErr == nil && winner != nil {
				if err := s.linkApplied(ctx, winner, input.Lines); err != nil {
					return nil, false, err
				}
				return winner, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order")
	}
	return order, true, nil
}

// linkApplied attaches products to stored lines that a previous delivery
// could not apply. Each input line claims at most one unlinked stored line
// with the same price and quantity.
func (s *Service) linkApplied(ctx context.Context, order *models.Order, lines []LineInput) error {
	claimed := make(map[uuid.UUID]bool, len(order.LineItems))
	for _, line := range lines {
		if line.ProductID == nil {
			continue
		}
		for i := range order.LineItems {
			stored := &order.LineItems[i]
			if stored.ProductID != nil || claimed[stored.ID] ||
				stored.StripePriceID != line.PriceID || stored.Quantity != line.Quantity {
				continue
			}
			claimed[stored.ID] = true
			linked, err := s.repo.LinkLineProduct(ctx, stored.ID, *line.ProductID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order line")
			}
			if linked {
				productID := *line.ProductID
				stored.ProductID = &productID
			}
			break
		}
	}
	return nil
}

// GetOrder loads a tenant's order with its line items.
func (s *Service) GetOrder(ctx context.Context, companyID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, companyID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// SoldQuantity sums the order's lines for productID.
func SoldQuantity(order *models.Order, productID uuid.UUID) int {
	total := 0
	for _, line := range order.LineItems {
		if line.ProductID != nil && *line.ProductID == productID {
			total += line.Quantity
		}
	}
	return total
}
