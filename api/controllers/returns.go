package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/api/middleware"
	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/api/validators"
	"github.com/angelmondragon/tillstock-backend/internal/returns"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type ReturnsService interface {
	CreateReturn(ctx context.Context, input returns.CreateReturnInput) (*models.Return, error)
	ListReturns(ctx context.Context, companyID, orderID uuid.UUID) ([]models.Return, error)
}

type createReturnRequest struct {
	OrderID   string `json:"order_id" validate:"required,uuid"`
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

type createReturnResponse struct {
	Success bool               `json:"success"`
	Return  *returns.ReturnDTO `json:"return"`
}

func ReturnCreate(svc ReturnsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("returns service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createReturnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseURLUUID(req.OrderID, "order_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.ParseURLUUID(req.ProductID, "product_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		created, err := svc.CreateReturn(ctx, returns.CreateReturnInput{
			CompanyID: companyID,
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  req.Quantity,
			Reason:    validators.SanitizeString(req.Reason, 500),
			ActorID:   middleware.ActorIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createReturnResponse{Success: true, Return: returns.FromModel(created)})
	}
}

func ReturnList(svc ReturnsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("returns service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, err := svc.ListReturns(ctx, companyID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]*returns.ReturnDTO, 0, len(rows))
		for i := range rows {
			out = append(out, returns.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"returns": out})
	}
}
