package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/dbtest"
)

func TestRecordWritesRowInTransaction(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	ctx := context.Background()
	companyID := uuid.New()
	productID := uuid.New()
	actor := uuid.New()

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Record(ctx, tx, Entry{
			CompanyID:  companyID,
			ActorID:    &actor,
			Action:     ActionStockIncrement,
			EntityType: EntityProduct,
			EntityID:   productID,
			Metadata:   map[string]any{"delta": 5},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByEntity(ctx, companyID, EntityProduct, productID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, ActionStockIncrement, rows[0].Action)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Metadata, &meta))
	require.EqualValues(t, 5, meta["delta"])
}

func TestRecordRolledBackWithTransaction(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	ctx := context.Background()
	companyID := uuid.New()
	entityID := uuid.New()
	boom := errors.New("boom")

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Record(ctx, tx, Entry{CompanyID: companyID, Action: ActionReturnCreated, EntityType: EntityReturn, EntityID: entityID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByEntity(ctx, companyID, EntityReturn, entityID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRecordValidates(t *testing.T) {
	svc, err := NewService(NewRepository(nil))
	require.NoError(t, err)

	require.Error(t, svc.Record(context.Background(), nil, Entry{}))

	db := dbtest.OpenSQLite(t)
	require.Error(t, svc.Record(context.Background(), db, Entry{Action: ActionStockDecrement}))
	require.Error(t, svc.Record(context.Background(), db, Entry{CompanyID: uuid.New()}))
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}
