package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/api/middleware"
	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/api/validators"
	"github.com/angelmondragon/tillstock-backend/internal/products"
	"github.com/angelmondragon/tillstock-backend/internal/stock"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type StockLedger interface {
	Increment(ctx context.Context, input stock.MutationInput) (*stock.Result, error)
	ListTransactions(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]models.StockTransaction, error)
}

type restockRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Note      *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// StockRestock adds units to a product and records the restock in the ledger.
// A repeated Idempotency-Key returns the product without a second increment.
func StockRestock(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil {
			responses.WriteError(ctx, logg, w, unavailable("stock ledger"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.ParseURLUUID(req.ProductID, "product_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var key *string
		if raw := strings.TrimSpace(r.Header.Get(idempotencyHeader)); raw != "" {
			scoped := "restock:" + companyID.String() + ":" + raw
			key = &scoped
		}

		result, err := ledger.Increment(ctx, stock.MutationInput{
			CompanyID:      companyID,
			ProductID:      productID,
			Quantity:       req.Quantity,
			Reason:         enums.StockReasonRestock,
			IdempotencyKey: key,
			ActorID:        middleware.ActorIDFromContext(ctx),
			Note:           validators.OptionalString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, products.FromModel(result.Product))
	}
}

// StockTransactions lists ledger rows for one product in the order they were applied.
func StockTransactions(ledger StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil {
			responses.WriteError(ctx, logg, w, unavailable("stock ledger"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.ParseURLUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := ledger.ListTransactions(ctx, companyID, productID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]stock.TransactionDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, stock.TransactionFromModel(row))
		}
		responses.WriteSuccess(w, map[string]any{"transactions": out})
	}
}
