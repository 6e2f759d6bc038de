package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

const idempotencyHeader = "Idempotency-Key"

func companyFromRequest(r *http.Request) (uuid.UUID, error) {
	companyID, ok := middleware.CompanyIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeTenantResolution, "company context missing")
	}
	return companyID, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}
