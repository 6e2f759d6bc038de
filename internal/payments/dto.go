package payments

import (
	"time"

	"github.com/google/uuid"
)

type LineItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type CheckoutInput struct {
	CompanyID      uuid.UUID
	LineItems      []LineItemInput
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the created processor session.
type CheckoutSession struct {
	ID             string `json:"sessionId"`
	URL            string `json:"url"`
	AmountTotal    int64  `json:"amountTotal"`
	ApplicationFee int64  `json:"applicationFee"`
	Currency       string `json:"currency"`
}

// SessionDetail is the cached read model of a processor checkout session.
type SessionDetail struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email,omitempty"`
	URL           string `json:"url,omitempty"`
	CompanyID     string `json:"company_id"`
}

type OnboardingLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LineItem is one priced line of a paid session.
type LineItem struct {
	PriceID         string
	Quantity        int
	UnitAmountCents int64
	AmountTotal     int64
}
