package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:db_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "lost"}).Error; err != nil {
				return err
			}
			panic("nil map write")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	ql := newQueryLogger(logg, 10*time.Millisecond)
	sqlFn := func() (string, int64) { return "UPDATE products SET in_stock = in_stock - 1", 1 }

	ql.Trace(context.Background(), time.Now(), sqlFn, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast statement should not be logged: %s", buf.String())
	}
	ql.Trace(context.Background(), time.Now(), sqlFn, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should not be logged: %s", buf.String())
	}
	ql.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn, nil)
	if !strings.Contains(buf.String(), "db.slow_query") {
		t.Fatalf("expected slow query log, got %s", buf.String())
	}
	buf.Reset()
	ql.Trace(context.Background(), time.Now(), sqlFn, errors.New("deadlock detected"))
	if !strings.Contains(buf.String(), "db.query_failed") {
		t.Fatalf("expected failure log, got %s", buf.String())
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec("CREATE TABLE IF NOT EXISTS keyed (k TEXT UNIQUE)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.Exec("INSERT INTO keyed (k) VALUES ('a')").Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := db.Exec("INSERT INTO keyed (k) VALUES ('a')").Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if !IsUniqueViolation(err, "keyed.k") {
		t.Fatalf("expected constraint match, got %v", err)
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("did not expect plain error to match")
	}
}
