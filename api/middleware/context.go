package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxCompanyID contextKey = "company_id"
)

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *tenancy.Principal {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxPrincipal).(*tenancy.Principal); ok {
		return v
	}
	return nil
}

func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID.String()
	}
	return ""
}

// ActorIDFromContext returns the caller's user id for audit attribution.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	if p := PrincipalFromContext(ctx); p != nil && p.UserID != uuid.Nil {
		id := p.UserID
		return &id
	}
	return nil
}

// CompanyIDFromContext returns the tenant seeded by the Tenant middleware.
func CompanyIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxCompanyID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, principal *tenancy.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// WithCompanyID injects the resolved tenant for downstream handlers.
func WithCompanyID(ctx context.Context, companyID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCompanyID, companyID)
}
