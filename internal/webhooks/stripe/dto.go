package stripewebhook

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

// Metric outcomes for webhook_events_total.
const (
	OutcomeApplied   = "applied"
	OutcomePartial   = "partial"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Result is the acknowledgement body returned to the processor.
type Result struct {
	EventID   string                   `json:"event_id"`
	Type      string                   `json:"type"`
	Status    enums.WebhookEventStatus `json:"status"`
	Duplicate bool                     `json:"duplicate"`
	CompanyID *uuid.UUID               `json:"company_id,omitempty"`
	SessionID string                   `json:"session_id,omitempty"`
	OrderID   *uuid.UUID               `json:"order_id,omitempty"`
	Items     []ItemOutcome            `json:"items,omitempty"`
	Failures  []ItemFailure            `json:"failures,omitempty"`
}

type ItemOutcome struct {
	Index     int       `json:"index"`
	PriceID   string    `json:"price_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	InStock   int       `json:"in_stock"`
	Duplicate bool      `json:"duplicate"`
}

// ItemFailure describes a line item (or, with index -1, the event as a
// whole) that could not be applied.
type ItemFailure struct {
	Index     int            `json:"index"`
	PriceID   string         `json:"price_id,omitempty"`
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
	Retriable bool           `json:"retriable"`
}
