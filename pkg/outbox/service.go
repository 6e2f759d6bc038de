package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

// Event is what domain services hand to Emit. Data is marshalled into the
// envelope as-is.
type Event struct {
	Type        enums.OutboxEventType
	AggregateID uuid.UUID
	Producer    *Producer
	Data        any
	OccurredAt  time.Time
}

func (e Event) validate() error {
	switch {
	case !e.Type.IsValid():
		return fmt.Errorf("unknown outbox event type %q", e.Type)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s event without aggregate id", e.Type)
	case e.Data == nil:
		return fmt.Errorf("%s event without data", e.Type)
	}
	return nil
}

// Emitter queues events inside the caller's transaction so they commit or
// roll back with the state change they describe.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event Event) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox emit requires a transaction")
	}
	if err := event.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", event.Type, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	env := Envelope{
		Schema:     CurrentSchema,
		EventID:    uuid.New(),
		EventType:  event.Type,
		OccurredAt: occurred,
		Producer:   event.Producer,
		Data:       data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	agg, _ := event.Type.Aggregate()
	row := &models.OutboxEvent{
		ID:            env.EventID,
		EventType:     event.Type,
		AggregateType: agg,
		AggregateID:   event.AggregateID,
		Payload:       datatypes.JSON(body),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID.String(),
		"event_type":   event.Type,
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
