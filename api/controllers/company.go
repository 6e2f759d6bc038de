package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillstock-backend/api/middleware"
	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/api/validators"
	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type PlatformFeeService interface {
	GetPlatformFee(ctx context.Context, companyID uuid.UUID) (*companies.PlatformFeeDTO, error)
	UpdatePlatformFee(ctx context.Context, companyID uuid.UUID, actorID *uuid.UUID, fee decimal.Decimal) (*companies.PlatformFeeDTO, error)
}

type ConnectService interface {
	CreateConnectedAccount(ctx context.Context, companyID uuid.UUID) (string, error)
	CreateOnboardingLink(ctx context.Context, companyID uuid.UUID, returnURL, refreshURL string) (*payments.OnboardingLink, error)
	SyncAccountStatus(ctx context.Context, companyID uuid.UUID) (*models.Company, error)
}

type platformFeeRequest struct {
	PlatformFeePercent json.Number `json:"platformFeePercent" validate:"required"`
}

func PlatformFeeGet(svc PlatformFeeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("company service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		fee, err := svc.GetPlatformFee(ctx, companyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, fee)
	}
}

// PlatformFeeUpdate sets the tenant's fee percent; the service enforces range
// and precision.
func PlatformFeeUpdate(svc PlatformFeeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("company service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req platformFeeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		fee, err := decimal.NewFromString(req.PlatformFeePercent.String())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "platformFeePercent must be a number").
				WithDetails(map[string]any{"field": "platformFeePercent"}))
			return
		}

		updated, err := svc.UpdatePlatformFee(ctx, companyID, middleware.ActorIDFromContext(ctx), fee)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func StripeCreateConnectedAccount(svc ConnectService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("payments service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		accountID, err := svc.CreateConnectedAccount(ctx, companyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"stripe_account_id": accountID})
	}
}

type onboardingLinkRequest struct {
	ReturnURL  string `json:"return_url" validate:"omitempty,url"`
	RefreshURL string `json:"refresh_url" validate:"omitempty,url"`
}

// StripeOnboardingLink issues a hosted onboarding link. An empty body falls
// back to the configured return and refresh URLs.
func StripeOnboardingLink(svc ConnectService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("payments service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req onboardingLinkRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		link, err := svc.CreateOnboardingLink(ctx, companyID, req.ReturnURL, req.RefreshURL)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}

// StripeStatus refreshes and returns the connected account capabilities.
func StripeStatus(svc ConnectService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("payments service"))
			return
		}
		companyID, err := companyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		company, err := svc.SyncAccountStatus(ctx, companyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, companies.StripeStatusFromModel(company))
	}
}
