package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

type CreateReturnInput struct {
	CompanyID uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Reason    string
	ActorID   *uuid.UUID
}

type ReturnDTO struct {
	ID                 uuid.UUID  `json:"id"`
	OrderID            uuid.UUID  `json:"order_id"`
	ProductID          uuid.UUID  `json:"product_id"`
	Quantity           int        `json:"quantity"`
	Reason             string     `json:"reason"`
	Status             string     `json:"status"`
	StockTransactionID *uuid.UUID `json:"stock_transaction_id,omitempty"`
	ActorID            *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func FromModel(r *models.Return) *ReturnDTO {
	if r == nil {
		return nil
	}
	return &ReturnDTO{
		ID:                 r.ID,
		OrderID:            r.OrderID,
		ProductID:          r.ProductID,
		Quantity:           r.Quantity,
		Reason:             r.Reason,
		Status:             r.Status.String(),
		StockTransactionID: r.StockTransactionID,
		ActorID:            r.ActorID,
		CreatedAt:          r.CreatedAt,
	}
}
