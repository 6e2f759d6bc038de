package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := outbox.NewRepository(db)
	svc := outbox.NewService(repo, nil)

	productID := uuid.New()
	companyID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.Event{
			Type:        enums.EventStockAdjusted,
			AggregateID: productID,
			Producer:    &outbox.Producer{CompanyID: companyID, Component: "test"},
			Data:        payloads.StockAdjustedEvent{ProductID: productID, Delta: 5},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), productID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.AggregateProduct, rows[0].AggregateType, "aggregate type comes from the event type")

	envelope, err := outbox.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, outbox.CurrentSchema, envelope.Schema)
	assert.Equal(t, rows[0].ID, envelope.EventID, "row id doubles as the event id")
	assert.Equal(t, enums.EventStockAdjusted, envelope.EventType)
	require.NotNil(t, envelope.Producer)
	assert.Equal(t, companyID, envelope.Producer.CompanyID)

	var data payloads.StockAdjustedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, 5, data.Delta)
}

func TestEmitRollsBackWithCallerTransaction(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := outbox.NewRepository(db)
	svc := outbox.NewService(repo, nil)

	productID := uuid.New()
	boom := errors.New("stock update failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.Event{
			Type:        enums.EventStockAdjusted,
			AggregateID: productID,
			Data:        payloads.StockAdjustedEvent{ProductID: productID},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(context.Background(), productID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	svc := outbox.NewService(outbox.NewRepository(db), nil)
	valid := outbox.Event{Type: enums.EventStockAdjusted, AggregateID: uuid.New(), Data: struct{}{}}

	require.Error(t, svc.Emit(context.Background(), nil, valid), "no transaction")

	cases := map[string]func(*outbox.Event){
		"unknown type":      func(e *outbox.Event) { e.Type = enums.OutboxEventType("nope") },
		"missing aggregate": func(e *outbox.Event) { e.AggregateID = uuid.Nil },
		"missing data":      func(e *outbox.Event) { e.Data = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			event := valid
			mutate(&event)
			require.Error(t, svc.Emit(context.Background(), db, event))
		})
	}
}

func TestDecodeEnvelopeRejectsEmptyData(t *testing.T) {
	_, err := outbox.DecodeEnvelope([]byte(`{"schema":1,"eventId":"` + uuid.NewString() + `","data":null}`))
	require.Error(t, err)
	_, err = outbox.DecodeEnvelope([]byte(`{"schema":1,"data":{}}`))
	require.Error(t, err, "event id is required")
	_, err = outbox.DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := outbox.NewRepository(db)

	first := &models.OutboxEvent{EventType: enums.EventStockAdjusted, AggregateType: enums.AggregateProduct, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	second := &models.OutboxEvent{EventType: enums.EventStockAdjusted, AggregateType: enums.AggregateProduct, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.NoError(t, repo.MarkPublishedTx(tx, first.ID))
		return repo.MarkTerminalTx(tx, second.ID, errors.New("bad payload"), 3)
	}))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		assert.Empty(t, rows, "published and terminal rows must not be fetched")
		return nil
	}))

	parked, err := repo.CountParked(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, parked)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestParkedRowsAreReportedByModel(t *testing.T) {
	row := models.OutboxEvent{AttemptCount: 3}
	assert.True(t, row.Parked(3))
	assert.False(t, row.Parked(4))
	assert.False(t, row.Parked(0), "no ceiling means nothing is parked")

	now := time.Now()
	row.PublishedAt = &now
	assert.True(t, row.Published())
	assert.False(t, row.Parked(3))
}
