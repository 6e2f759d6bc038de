package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// CurrentSchema is stamped on every envelope written today. Consumers
// switch on it before decoding Data.
const CurrentSchema = 1

// Producer records which tenant, user and component caused an event.
type Producer struct {
	CompanyID uuid.UUID  `json:"companyId"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Component string     `json:"component,omitempty"`
}

// Envelope is the JSON stored in outbox_events.payload and published
// verbatim as the message body.
type Envelope struct {
	Schema     int                   `json:"schema"`
	EventID    uuid.UUID             `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType"`
	OccurredAt time.Time             `json:"occurredAt"`
	Producer   *Producer             `json:"producer,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

var errEmptyData = errors.New("envelope data is empty")

// DecodeEnvelope parses a stored payload and rejects envelopes that carry
// no data.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, errEmptyData
	}
	if env.EventID == uuid.Nil {
		return Envelope{}, errors.New("envelope has no event id")
	}
	return env, nil
}
