package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
)

// MutationInput describes one stock change request.
type MutationInput struct {
	CompanyID      uuid.UUID
	ProductID      uuid.UUID
	Quantity       int
	Reason         enums.StockReason
	IdempotencyKey *string
	ActorID        *uuid.UUID
	Note           *string
}

// Result is the outcome of a mutation. Duplicate marks a replayed idempotency
// key: nothing changed and Transaction is the row recorded the first time.
type Result struct {
	Product     *models.Product
	Transaction *models.StockTransaction
	Duplicate   bool
}

type TransactionDTO struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	Delta          int        `json:"delta"`
	Reason         string     `json:"reason"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
	ActorID        *uuid.UUID `json:"actor_id,omitempty"`
	Note           *string    `json:"note,omitempty"`
	BalanceAfter   int        `json:"balance_after"`
	CreatedAt      time.Time  `json:"created_at"`
}

func TransactionFromModel(row models.StockTransaction) TransactionDTO {
	return TransactionDTO{
		ID:             row.ID,
		ProductID:      row.ProductID,
		Delta:          row.Delta,
		Reason:         row.Reason.String(),
		IdempotencyKey: row.IdempotencyKey,
		ActorID:        row.ActorID,
		Note:           row.Note,
		BalanceAfter:   row.BalanceAfter,
		CreatedAt:      row.CreatedAt,
	}
}
