package payloads

import (
	"github.com/google/uuid"
)

// StockAdjustedEvent is emitted for every applied stock ledger row.
type StockAdjustedEvent struct {
	CompanyID          uuid.UUID `json:"companyId"`
	ProductID          uuid.UUID `json:"productId"`
	StockTransactionID uuid.UUID `json:"stockTransactionId"`
	Reason             string    `json:"reason"`
	Delta              int       `json:"delta"`
	BalanceAfter       int       `json:"balanceAfter"`
	LowStock           bool      `json:"lowStock"`
	LowStockThreshold  int       `json:"lowStockThreshold"`
}

// OrderRecordedEvent is emitted once a paid checkout session becomes an order.
type OrderRecordedEvent struct {
	CompanyID           uuid.UUID `json:"companyId"`
	OrderID             uuid.UUID `json:"orderId"`
	StripeSessionID     string    `json:"stripeSessionId"`
	AmountTotalCents    int64     `json:"amountTotalCents"`
	ApplicationFeeCents int64     `json:"applicationFeeCents"`
	Currency            string    `json:"currency"`
	LineItemCount       int       `json:"lineItemCount"`
}

// ReturnCreatedEvent is emitted when returned units are back in stock.
type ReturnCreatedEvent struct {
	CompanyID          uuid.UUID `json:"companyId"`
	ReturnID           uuid.UUID `json:"returnId"`
	OrderID            uuid.UUID `json:"orderId"`
	ProductID          uuid.UUID `json:"productId"`
	Quantity           int       `json:"quantity"`
	StockTransactionID uuid.UUID `json:"stockTransactionId"`
}

// AccountStatusChangedEvent is emitted when connected-account capabilities flip.
type AccountStatusChangedEvent struct {
	CompanyID          uuid.UUID `json:"companyId"`
	StripeAccountID    string    `json:"stripeAccountId"`
	ChargesEnabled     bool      `json:"chargesEnabled"`
	PayoutsEnabled     bool      `json:"payoutsEnabled"`
	DetailsSubmitted   bool      `json:"detailsSubmitted"`
	OnboardingComplete bool      `json:"onboardingComplete"`
}
