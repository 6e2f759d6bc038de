package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/api/validators"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, input payments.CheckoutInput) (*payments.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, companyID uuid.UUID, sessionID string) (*payments.SessionDetail, error)
}

type checkoutLineRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// A single product may be sent flat; lineItems covers multi-product carts.
type checkoutRequest struct {
	ProductID     string                `json:"productId" validate:"omitempty,uuid"`
	Quantity      int                   `json:"quantity" validate:"omitempty,gt=0"`
	LineItems     []checkoutLineRequest `json:"lineItems" validate:"omitempty,dive"`
	CustomerEmail string                `json:"customerEmail" validate:"omitempty,email"`
	SuccessURL    string                `json:"successUrl" validate:"omitempty,url"`
	CancelURL     string                `json:"cancelUrl" validate:"omitempty,url"`
}

func (req checkoutRequest) lines() ([]payments.LineItemInput, error) {
	raw := req.LineItems
	if req.ProductID != "" {
		if req.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"field": "quantity"})
		}
		raw = append([]checkoutLineRequest{{ProductID: req.ProductID, Quantity: req.Quantity}}, raw...)
	}
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId and quantity are required")
	}
	out := make([]payments.LineItemInput, 0, len(raw))
	for _, line := range raw {
		id, err := validators.ParseURLUUID(line.ProductID, "productId")
		if err != nil {
			return nil, err
		}
		out = append(out, payments.LineItemInput{ProductID: id, Quantity: line.Quantity})
	}
	return out, nil
}

// CheckoutCreateSession opens a hosted checkout session for the caller's company.
func CheckoutCreateSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("checkout service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		lines, err := req.lines()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.CreateCheckoutSession(ctx, payments.CheckoutInput{
			CompanyID:      companyID,
			LineItems:      lines,
			CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
			SuccessURL:     req.SuccessURL,
			CancelURL:      req.CancelURL,
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithField(ctx, "session_id", session.ID), "checkout session created")
		responses.WriteSuccess(w, session)
	}
}

// CheckoutGetSession returns a session owned by the caller's company.
func CheckoutGetSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("checkout service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "session_id is required").WithDetails(map[string]any{"field": "session_id"}))
			return
		}

		detail, err := svc.GetCheckoutSession(ctx, companyID, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
