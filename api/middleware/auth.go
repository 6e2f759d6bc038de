package middleware

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
	"github.com/angelmondragon/tillstock-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type tokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth turns the bearer token into a tenancy.Principal on the context.
// Tenant resolution runs later, in Tenant.
func Auth(verifier tokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.Verify(auth.BearerToken(r.Header.Get("Authorization")))
			if errors.Is(err, auth.ErrMissingToken) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithPrincipal(r.Context(), &tenancy.Principal{
				UserID:    claims.UserID,
				CompanyID: claims.CompanyID,
				Role:      claims.Role,
			})
			ctx = logg.WithUserID(ctx, claims.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
