package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

func newLedger(t *testing.T, conn *gorm.DB) *Ledger {
	t.Helper()
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	ledger, err := NewLedger(LedgerParams{
		Tx:      db.Wrap(conn),
		Repo:    NewRepository(conn),
		Audit:   auditSvc,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics: metrics.NewStockMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return ledger
}

func key(s string) *string { return &s }

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", id).Error)
	return product.InStock
}

func ledgerRows(t *testing.T, conn *gorm.DB, productID uuid.UUID) []models.StockTransaction {
	t.Helper()
	var rows []models.StockTransaction
	require.NoError(t, conn.Where("product_id = ?", productID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestIncrementWritesLedgerAuditAndOutbox(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 10)
	actor := uuid.New()

	res, err := ledger.Increment(ctx, MutationInput{
		CompanyID: company.ID,
		ProductID: product.ID,
		Quantity:  5,
		Reason:    enums.StockReasonRestock,
		ActorID:   &actor,
		Note:      key("pallet delivery"),
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 15, res.Product.InStock)
	assert.Equal(t, 5, res.Transaction.Delta)
	assert.Equal(t, 15, res.Transaction.BalanceAfter)

	rows := ledgerRows(t, conn, product.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.StockReasonRestock, rows[0].Reason)

	var audits []models.AuditLog
	require.NoError(t, conn.Where("entity_id = ?", product.ID).Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, audit.ActionStockIncrement, audits[0].Action)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", product.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventStockAdjusted, events[0].EventType)
}

func TestDecrementInsufficientStockLeavesNoTrace(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 2)

	_, err := ledger.Decrement(ctx, MutationInput{
		CompanyID:      company.ID,
		ProductID:      product.ID,
		Quantity:       3,
		Reason:         enums.StockReasonSale,
		IdempotencyKey: key("evt_1:0"),
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, 2, stockOf(t, conn, product.ID))
	assert.Empty(t, ledgerRows(t, conn, product.ID))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", product.ID).Count(&events).Error)
	assert.Zero(t, events)
}

func TestDecrementToZeroIsAllowed(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 3)

	res, err := ledger.Decrement(context.Background(), MutationInput{
		CompanyID: company.ID, ProductID: product.ID, Quantity: 3,
		Reason: enums.StockReasonSale, IdempotencyKey: key("evt_zero:0"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Product.InStock)
}

func TestMutationNotFound(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	owner := dbtest.MustCompany(t, conn)
	other := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, owner.ID, 5)
	archivedAt := time.Now()
	archived := dbtest.MustProduct(t, conn, owner.ID, 5, func(p *models.Product) { p.ArchivedAt = &archivedAt })

	cases := map[string]MutationInput{
		"other tenant": {CompanyID: other.ID, ProductID: product.ID, Quantity: 1, Reason: enums.StockReasonRestock},
		"archived":     {CompanyID: owner.ID, ProductID: archived.ID, Quantity: 1, Reason: enums.StockReasonRestock},
		"missing":      {CompanyID: owner.ID, ProductID: uuid.New(), Quantity: 1, Reason: enums.StockReasonRestock},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Increment(ctx, input)
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
		})
	}
	assert.Equal(t, 5, stockOf(t, conn, product.ID))
	assert.Equal(t, 5, stockOf(t, conn, archived.ID))
}

func TestMutationValidation(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := uuid.New()
	product := uuid.New()

	_, err := ledger.Decrement(ctx, MutationInput{CompanyID: company, ProductID: product, Quantity: 1, Reason: enums.StockReasonSale})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "sale without key: %v", err)

	_, err = ledger.Increment(ctx, MutationInput{CompanyID: company, ProductID: product, Quantity: 0, Reason: enums.StockReasonRestock})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "zero quantity: %v", err)

	_, err = ledger.Increment(ctx, MutationInput{CompanyID: company, ProductID: product, Quantity: 1, Reason: enums.StockReasonSale, IdempotencyKey: key("k")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "sale increment: %v", err)

	_, err = ledger.Decrement(ctx, MutationInput{CompanyID: company, ProductID: product, Quantity: 1, Reason: enums.StockReasonRestock})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "restock decrement: %v", err)

	_, err = ledger.Increment(ctx, MutationInput{CompanyID: company, ProductID: product, Quantity: 1, Reason: "gift"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "unknown reason: %v", err)
}

func TestReplayedKeyIsNoOp(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 10)

	input := MutationInput{
		CompanyID:      company.ID,
		ProductID:      product.ID,
		Quantity:       3,
		Reason:         enums.StockReasonSale,
		IdempotencyKey: key("evt_replay:0"),
	}
	first, err := ledger.Decrement(ctx, input)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	for i := 0; i < 3; i++ {
		again, err := ledger.Decrement(ctx, input)
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
		assert.Equal(t, 7, again.Product.InStock)
	}
	assert.Len(t, ledgerRows(t, conn, product.ID), 1)
	assert.Equal(t, 7, stockOf(t, conn, product.ID))
}

func TestKeyReuseForOtherProductConflicts(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	a := dbtest.MustProduct(t, conn, company.ID, 10)
	b := dbtest.MustProduct(t, conn, company.ID, 10)

	_, err := ledger.Decrement(ctx, MutationInput{CompanyID: company.ID, ProductID: a.ID, Quantity: 1, Reason: enums.StockReasonSale, IdempotencyKey: key("shared")})
	require.NoError(t, err)

	_, err = ledger.Decrement(ctx, MutationInput{CompanyID: company.ID, ProductID: b.ID, Quantity: 1, Reason: enums.StockReasonSale, IdempotencyKey: key("shared")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeIdempotency), "got %v", err)
	assert.Equal(t, 10, stockOf(t, conn, b.ID))
}

func TestIncrementTxRollsBackWithCaller(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 4)
	boom := errors.New("return row failed")

	err := db.Wrap(conn).WithTx(ctx, func(tx *gorm.DB) error {
		res, err := ledger.IncrementTx(ctx, tx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 2, Reason: enums.StockReasonReturn})
		if err != nil {
			return err
		}
		if res.Product.InStock != 6 {
			return fmt.Errorf("unexpected stock %d inside tx", res.Product.InStock)
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, stockOf(t, conn, product.ID))
	assert.Empty(t, ledgerRows(t, conn, product.ID))

	_, err = ledger.IncrementTx(ctx, nil, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 1, Reason: enums.StockReasonReturn})
	require.Error(t, err)
}

func TestLowStockFlagOnEvent(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 6, func(p *models.Product) { p.LowStockThreshold = 3 })

	_, err := ledger.Decrement(ctx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 4, Reason: enums.StockReasonSale, IdempotencyKey: key("evt_low:0")})
	require.NoError(t, err)

	var event models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", product.ID).First(&event).Error)
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStockAdjusted, envelope.EventType)
	var data payloads.StockAdjustedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.True(t, data.LowStock)
	assert.Equal(t, 2, data.BalanceAfter)
	assert.Equal(t, -4, data.Delta)
}

func TestConcurrentMutationsConserveStock(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	const initial = 5
	product := dbtest.MustProduct(t, conn, company.ID, initial)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		incremented  int
		decremented  int
		insufficient int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := ledger.Increment(ctx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 1, Reason: enums.StockReasonRestock})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					incremented++
				}
				return
			}
			_, err := ledger.Decrement(ctx, MutationInput{
				CompanyID: company.ID, ProductID: product.ID, Quantity: 2,
				Reason: enums.StockReasonSale, IdempotencyKey: key(fmt.Sprintf("evt_conc:%d", i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				decremented += 2
			case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	final := stockOf(t, conn, product.ID)
	assert.Equal(t, initial+incremented-decremented, final)
	assert.GreaterOrEqual(t, final, 0)

	var sum int
	for _, row := range ledgerRows(t, conn, product.ID) {
		sum += row.Delta
	}
	assert.Equal(t, final-initial, sum, "ledger deltas must account for every change")
}

func TestConcurrentRestocksBothApply(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Increment(ctx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 2, Reason: enums.StockReasonRestock})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 4, stockOf(t, conn, product.ID))
	assert.Len(t, ledgerRows(t, conn, product.ID), 2)
}

func TestListTransactions(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 1)

	_, err := ledger.Increment(ctx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 1, Reason: enums.StockReasonRestock})
	require.NoError(t, err)

	rows, err := ledger.ListTransactions(ctx, company.ID, product.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, TransactionFromModel(rows[0]).BalanceAfter)

	_, err = ledger.ListTransactions(ctx, uuid.New(), product.ID, 0)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

// Postgres serializes competing writers on the idempotency index, which is
// what exercises the savepoint path. Run with TILLSTOCK_TEST_DB_DSN set.
func TestConcurrentDuplicateKeyPostgres(t *testing.T) {
	conn := dbtest.OpenPostgres(t)
	ledger := newLedger(t, conn)
	ctx := context.Background()
	company := dbtest.MustCompany(t, conn)
	product := dbtest.MustProduct(t, conn, company.ID, 50)
	k := "evt_pg_" + uuid.NewString() + ":0"

	var wg sync.WaitGroup
	results := make(chan *Result, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Decrement(ctx, MutationInput{CompanyID: company.ID, ProductID: product.ID, Quantity: 1, Reason: enums.StockReasonSale, IdempotencyKey: &k})
			if err != nil {
				t.Errorf("decrement: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		if !res.Duplicate {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 49, stockOf(t, conn, product.ID))
	assert.Len(t, ledgerRows(t, conn, product.ID), 1)
}
