// Package dbtest opens throwaway databases for package tests.
package dbtest

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

// DSNEnv gates tests that need a real Postgres.
const DSNEnv = "TILLSTOCK_TEST_DB_DSN"

// AllModels lists every table the service owns, in dependency order.
func AllModels() []any {
	return []any{
		&models.Company{},
		&models.Profile{},
		&models.Product{},
		&models.StockTransaction{},
		&models.WebhookEvent{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.Return{},
		&models.AuditLog{},
		&models.OutboxEvent{},
	}
}

// OpenSQLite returns an isolated in-memory database with the schema applied.
// A single connection keeps writes serialized the way sqlite expects.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:tillstock_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// OpenPostgres connects to the database named by DSNEnv, skipping the test
// when it is unset. The schema is expected to be migrated already.
func OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", DSNEnv)
	}
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	return conn
}

// Seed helpers keep fixtures consistent across packages.

func MustCompany(t *testing.T, db *gorm.DB, mutate ...func(*models.Company)) *models.Company {
	t.Helper()
	company := &models.Company{Name: "Test Co " + uuid.NewString()[:8]}
	for _, fn := range mutate {
		fn(company)
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	return company
}

func MustProduct(t *testing.T, db *gorm.DB, companyID uuid.UUID, inStock int, mutate ...func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		CompanyID:  companyID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Test Product",
		PriceCents: 1000,
		Currency:   "usd",
		InStock:    inStock,
	}
	for _, fn := range mutate {
		fn(product)
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func MustOrder(t *testing.T, db *gorm.DB, companyID uuid.UUID, lines map[uuid.UUID]int) *models.Order {
	t.Helper()
	order := &models.Order{
		CompanyID:        companyID,
		StripeSessionID:  "cs_test_" + uuid.NewString(),
		AmountTotalCents: 1000,
		Currency:         "usd",
	}
	for productID, qty := range lines {
		id := productID
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ProductID:       &id,
			StripePriceID:   "price_" + id.String()[:8],
			Quantity:        qty,
			UnitAmountCents: 1000,
		})
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
