package returns

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/internal/orders"
	"github.com/angelmondragon/tillstock-backend/internal/products"
	"github.com/angelmondragon/tillstock-backend/internal/stock"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

type stockIncrementer interface {
	IncrementTx(ctx context.Context, tx *gorm.DB, input stock.MutationInput) (*stock.Result, error)
}

type ServiceParams struct {
	Tx       db.TxRunner
	Repo     *Repository
	Orders   *orders.Repository
	Products *products.Repository
	Stock    stockIncrementer
	Audit    audit.Recorder
	Outbox   outbox.Emitter
	Logger   *logger.Logger
}

// Service processes customer returns. The stock increment, its ledger row,
// the return row and the audit entry commit together or not at all.
type Service struct {
	tx       db.TxRunner
	repo     *Repository
	orders   *orders.Repository
	products *products.Repository
	stock    stockIncrementer
	audit    audit.Recorder
	outbox   outbox.Emitter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil || params.Orders == nil || params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "return, order and product repositories required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{
		tx:       params.Tx,
		repo:     params.Repo,
		orders:   params.Orders,
		products: params.Products,
		stock:    params.Stock,
		audit:    params.Audit,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *Service) CreateReturn(ctx context.Context, input CreateReturnInput) (*models.Return, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := validate(input); err != nil {
		return nil, err
	}

	var created *models.Return
	var stockErr error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByIDForUpdate(ctx, input.CompanyID, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if _, err := s.products.WithTx(tx).FindByID(ctx, input.CompanyID, input.ProductID); err != nil {
			return err
		}

		sold := orders.SoldQuantity(order, input.ProductID)
		if sold == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order does not contain product")
		}
		returned, err := s.repo.WithTx(tx).ReturnedQuantity(ctx, input.OrderID, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum returns")
		}
		if input.Quantity > sold-returned {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds returnable units").
				WithDetails(map[string]any{"sold": sold, "returned": returned, "requested": input.Quantity})
		}

		note := fmt.Sprintf("return against order %s: %s", input.OrderID, input.Reason)
		res, err := s.stock.IncrementTx(ctx, tx, stock.MutationInput{
			CompanyID: input.CompanyID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Reason:    enums.StockReasonReturn,
			ActorID:   input.ActorID,
			Note:      &note,
		})
		if err != nil {
			stockErr = err
			return err
		}

		row := &models.Return{
			CompanyID:          input.CompanyID,
			OrderID:            input.OrderID,
			ProductID:          input.ProductID,
			Quantity:           input.Quantity,
			Reason:             input.Reason,
			StockTransactionID: &res.Transaction.ID,
			Status:             enums.ReturnStatusCreated,
			ActorID:            input.ActorID,
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert return")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			CompanyID:  input.CompanyID,
			ActorID:    input.ActorID,
			Action:     audit.ActionReturnCreated,
			EntityType: audit.EntityReturn,
			EntityID:   row.ID,
			Metadata: map[string]any{
				"order_id":             input.OrderID.String(),
				"product_id":           input.ProductID.String(),
				"quantity":             input.Quantity,
				"stock_transaction_id": res.Transaction.ID.String(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record return audit")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventReturnCreated,
			AggregateID: row.ID,
			Producer:    &outbox.Producer{UserID: input.ActorID, CompanyID: input.CompanyID, Component: "returns"},
			Data: payloads.ReturnCreatedEvent{
				CompanyID:          input.CompanyID,
				ReturnID:           row.ID,
				OrderID:            input.OrderID,
				ProductID:          input.ProductID,
				Quantity:           input.Quantity,
				StockTransactionID: res.Transaction.ID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit return event")
		}
		created = row
		return nil
	})
	if err != nil {
		if stockErr != nil && !pkgerrors.IsRetryable(stockErr) {
			s.recordFailed(ctx, input, stockErr)
		}
		return nil, err
	}
	return created, nil
}

// recordFailed keeps a trace of a return the shelf refused, outside the
// rolled back transaction.
func (s *Service) recordFailed(ctx context.Context, input CreateReturnInput, cause error) {
	row := &models.Return{
		CompanyID: input.CompanyID,
		OrderID:   input.OrderID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Reason:    input.Reason,
		Status:    enums.ReturnStatusFailed,
		ActorID:   input.ActorID,
	}
	if err := s.repo.Create(ctx, row); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to persist failed return", err)
		return
	}
	if s.logg != nil {
		s.logg.WarnErr(s.logg.WithFields(ctx, map[string]any{
			"order_id":   input.OrderID.String(),
			"product_id": input.ProductID.String(),
		}), "return rejected by stock ledger", cause)
	}
}

func (s *Service) ListReturns(ctx context.Context, companyID, orderID uuid.UUID) ([]models.Return, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	order, err := s.orders.FindByID(ctx, companyID, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.repo.ListByOrder(ctx, companyID, orderID)
}

func validate(input CreateReturnInput) error {
	var missing []string
	if input.CompanyID == uuid.Nil {
		missing = append(missing, "company_id")
	}
	if input.OrderID == uuid.Nil {
		missing = append(missing, "order_id")
	}
	if input.ProductID == uuid.Nil {
		missing = append(missing, "product_id")
	}
	if input.Reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	return nil
}
