// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publishing.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

// EventDescriptor is the route for one event type.
type EventDescriptor struct {
	EventType enums.OutboxEventType
	Topic     string
	newData   func() any
}

// ResolvedEvent is an outbox row that is safe to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

// PermanentError marks a row that will fail the same way on every attempt.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent outbox error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	var perm PermanentError
	return errors.As(err, &perm)
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry wires stock and return events to the stock topic and
// order and account events to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.StockTopic == "" || cfg.OrdersTopic == "" {
		return nil, errors.New("both stock and orders topics must be configured")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	reg.route(enums.EventStockAdjusted, cfg.StockTopic, func() any { return &payloads.StockAdjustedEvent{} })
	reg.route(enums.EventReturnCreated, cfg.StockTopic, func() any { return &payloads.ReturnCreatedEvent{} })
	reg.route(enums.EventOrderRecorded, cfg.OrdersTopic, func() any { return &payloads.OrderRecordedEvent{} })
	reg.route(enums.EventAccountStatusChanged, cfg.OrdersTopic, func() any { return &payloads.AccountStatusChangedEvent{} })
	return reg, nil
}

func (r *EventRegistry) route(eventType enums.OutboxEventType, topic string, newData func() any) {
	r.routes[eventType] = EventDescriptor{EventType: eventType, Topic: topic, newData: newData}
}

// Topics returns the distinct destination topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, d := range r.routes {
		set[d.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its route and decodes the payload. Every
// failure here is permanent.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %s", row.EventType))
	}
	if !row.EventType.Accepts(row.AggregateType) {
		return nil, Permanent(fmt.Errorf("%s cannot reference aggregate %s", row.EventType, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("row has no aggregate id"))
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	if env.EventType != "" && env.EventType != row.EventType {
		return nil, Permanent(fmt.Errorf("envelope says %s but row says %s", env.EventType, row.EventType))
	}

	data := desc.newData()
	if err := json.Unmarshal(env.Data, data); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: data}, nil
}
