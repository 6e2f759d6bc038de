package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type tenantResolver interface {
	ResolveCompanyID(ctx context.Context, principal *tenancy.Principal) (uuid.UUID, error)
}

// Tenant resolves the caller's company and scopes the request to it. It must
// run after Auth.
func Tenant(resolver tenantResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			companyID, err := resolver.ResolveCompanyID(r.Context(), PrincipalFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithCompanyID(r.Context(), companyID)
			if logg != nil {
				ctx = logg.WithCompanyID(ctx, companyID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
