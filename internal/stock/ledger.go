package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

const savepoint = "stock_mutation"

const (
	outcomeApplied      = "applied"
	outcomeDuplicate    = "duplicate"
	outcomeInsufficient = "insufficient"
	outcomeNotFound     = "not_found"
	outcomeError        = "error"
)

type LedgerParams struct {
	Tx      db.TxRunner
	Repo    *Repository
	Audit   audit.Recorder
	Outbox  outbox.Emitter
	Metrics *metrics.StockMetrics
	Logger  *logger.Logger
}

// Ledger is the only writer of products.in_stock. Each applied mutation
// commits the counter change, one stock_transactions row, an audit entry and
// an outbox event together.
type Ledger struct {
	tx      db.TxRunner
	repo    *Repository
	audit   audit.Recorder
	outbox  outbox.Emitter
	metrics *metrics.StockMetrics
	logg    *logger.Logger
}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Ledger{
		tx:      params.Tx,
		repo:    params.Repo,
		audit:   params.Audit,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Decrement removes stock in its own transaction. Insufficient stock fails
// without touching the row or the ledger.
func (l *Ledger) Decrement(ctx context.Context, input MutationInput) (*Result, error) {
	return l.inOwnTx(ctx, input, -1)
}

// Increment adds stock in its own transaction.
func (l *Ledger) Increment(ctx context.Context, input MutationInput) (*Result, error) {
	return l.inOwnTx(ctx, input, 1)
}

// DecrementTx enlists the mutation in the caller's transaction.
func (l *Ledger) DecrementTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*Result, error) {
	return l.inCallerTx(ctx, tx, input, -1)
}

// IncrementTx enlists the mutation in the caller's transaction.
func (l *Ledger) IncrementTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*Result, error) {
	return l.inCallerTx(ctx, tx, input, 1)
}

// ListTransactions returns the ledger rows of a tenant's product.
func (l *Ledger) ListTransactions(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]models.StockTransaction, error) {
	product, err := l.repo.FindProduct(ctx, companyID, productID, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return l.repo.ListTransactions(ctx, companyID, productID, limit)
}

func (l *Ledger) inOwnTx(ctx context.Context, input MutationInput, sign int) (*Result, error) {
	if err := validate(input, sign); err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, err
	}
	var result *Result
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := l.apply(ctx, tx, input, sign)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.afterCommit(ctx, input, result)
	return result, nil
}

func (l *Ledger) inCallerTx(ctx context.Context, tx *gorm.DB, input MutationInput, sign int) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validate(input, sign); err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, err
	}
	result, err := l.apply(ctx, tx, input, sign)
	if err != nil {
		return nil, err
	}
	// The caller owns the commit, so the logs below may describe a
	// mutation that is later rolled back.
	l.afterCommit(ctx, input, result)
	return result, nil
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, input MutationInput, sign int) (*Result, error) {
	repo := l.repo.WithTx(tx)
	delta := sign * input.Quantity

	if input.IdempotencyKey != nil {
		existing, err := repo.FindByIdempotencyKey(ctx, *input.IdempotencyKey)
		if err != nil {
			l.observe(input.Reason, outcomeError)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
		}
		if existing != nil {
			return l.duplicate(ctx, repo, input, existing)
		}
	}

	if err := tx.SavePoint(savepoint).Error; err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stock savepoint")
	}

	affected, err := repo.AdjustInStock(ctx, input.CompanyID, input.ProductID, delta)
	if err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
	}
	if affected == 0 {
		return nil, l.explainMiss(ctx, repo, input)
	}

	product, err := repo.FindProduct(ctx, input.CompanyID, input.ProductID, false)
	if err != nil || product == nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	row := &models.StockTransaction{
		CompanyID:      input.CompanyID,
		ProductID:      input.ProductID,
		Delta:          delta,
		Reason:         input.Reason,
		IdempotencyKey: input.IdempotencyKey,
		ActorID:        input.ActorID,
		Note:           input.Note,
		BalanceAfter:   product.InStock,
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		if input.IdempotencyKey != nil && isKeyConflict(err) {
			// A concurrent request with the same key committed first.
			if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
				l.observe(input.Reason, outcomeError)
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback stock savepoint")
			}
			existing, findErr := repo.FindByIdempotencyKey(ctx, *input.IdempotencyKey)
			if findErr != nil || existing == nil {
				l.observe(input.Reason, outcomeError)
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve idempotency race")
			}
			return l.duplicate(ctx, repo, input, existing)
		}
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock transaction")
	}

	action := audit.ActionStockIncrement
	if sign < 0 {
		action = audit.ActionStockDecrement
	}
	metadata := map[string]any{
		"delta":                delta,
		"reason":               input.Reason.String(),
		"balance_after":        product.InStock,
		"stock_transaction_id": row.ID.String(),
	}
	if input.IdempotencyKey != nil {
		metadata["idempotency_key"] = *input.IdempotencyKey
	}
	if err := l.audit.Record(ctx, tx, audit.Entry{
		CompanyID:  input.CompanyID,
		ActorID:    input.ActorID,
		Action:     action,
		EntityType: audit.EntityProduct,
		EntityID:   input.ProductID,
		Metadata:   metadata,
	}); err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock audit")
	}

	if err := l.outbox.Emit(ctx, tx, outbox.Event{
		Type:        enums.EventStockAdjusted,
		AggregateID: input.ProductID,
		Producer:    &outbox.Producer{UserID: input.ActorID, CompanyID: input.CompanyID, Component: "stock_ledger"},
		Data: payloads.StockAdjustedEvent{
			CompanyID:          input.CompanyID,
			ProductID:          input.ProductID,
			StockTransactionID: row.ID,
			Reason:             input.Reason.String(),
			Delta:              delta,
			BalanceAfter:       product.InStock,
			LowStock:           product.IsLowStock(),
			LowStockThreshold:  product.LowStockThreshold,
		},
	}); err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stock event")
	}

	l.observe(input.Reason, outcomeApplied)
	return &Result{Product: product, Transaction: row}, nil
}

// duplicate reports a replayed key. The key must have been used for the same
// product and direction; anything else is a client bug.
func (l *Ledger) duplicate(ctx context.Context, repo *Repository, input MutationInput, existing *models.StockTransaction) (*Result, error) {
	if existing.CompanyID != input.CompanyID || existing.ProductID != input.ProductID || existing.Reason != input.Reason {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for a different stock mutation").
			WithDetails(map[string]any{"idempotency_key": *input.IdempotencyKey})
	}
	product, err := repo.FindProduct(ctx, input.CompanyID, input.ProductID, false)
	if err != nil {
		l.observe(input.Reason, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		l.observe(input.Reason, outcomeNotFound)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	l.observe(input.Reason, outcomeDuplicate)
	return &Result{Product: product, Transaction: existing, Duplicate: true}, nil
}

func (l *Ledger) explainMiss(ctx context.Context, repo *Repository, input MutationInput) error {
	product, err := repo.FindProduct(ctx, input.CompanyID, input.ProductID, true)
	if err != nil {
		l.observe(input.Reason, outcomeError)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		l.observe(input.Reason, outcomeNotFound)
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	l.observe(input.Reason, outcomeInsufficient)
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d in stock", product.InStock)).
		WithDetails(map[string]any{
			"product_id": input.ProductID,
			"available":  product.InStock,
			"requested":  input.Quantity,
		})
}

func (l *Ledger) afterCommit(ctx context.Context, input MutationInput, result *Result) {
	if result == nil || result.Duplicate || !result.Product.IsLowStock() {
		return
	}
	product := result.Product
	l.metrics.IncLowStock(input.Reason.String())
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"company_id": input.CompanyID.String(),
			"product_id": input.ProductID.String(),
			"in_stock":   product.InStock,
			"threshold":  product.LowStockThreshold,
		})
		l.logg.Warn(logCtx, "product at or below low-stock threshold")
	}
}

func (l *Ledger) observe(reason enums.StockReason, outcome string) {
	l.metrics.Observe(reason.String(), outcome)
}

func validate(input MutationInput, sign int) error {
	if input.CompanyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company_id is required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock reason %q", input.Reason))
	}
	if sign < 0 && input.Reason != enums.StockReasonSale {
		return pkgerrors.New(pkgerrors.CodeValidation, "only sales decrement stock")
	}
	if sign > 0 && input.Reason == enums.StockReasonSale {
		return pkgerrors.New(pkgerrors.CodeValidation, "sales cannot increment stock")
	}
	if input.IdempotencyKey != nil && strings.TrimSpace(*input.IdempotencyKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key must not be blank")
	}
	if input.Reason == enums.StockReasonSale && input.IdempotencyKey == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale mutations require an idempotency key")
	}
	return nil
}

func isKeyConflict(err error) bool {
	return db.IsUniqueViolation(err, idempotencyConstraint) ||
		db.IsUniqueViolation(err, "stock_transactions.idempotency_key")
}
