package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	stripewebhook "github.com/angelmondragon/tillstock-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 20

type PaymentWebhookService interface {
	HandlePayload(ctx context.Context, payload []byte, signatureHeader string) (*stripewebhook.Result, error)
}

// PaymentWebhook receives processor events. The raw body is passed through
// untouched because the signature covers its exact bytes.
func PaymentWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.HandlePayload(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithFields(ctx, map[string]any{
			"event_id":   result.EventID,
			"event_type": result.Type,
			"status":     result.Status,
			"duplicate":  result.Duplicate,
		}), "payment webhook handled")
		responses.WriteSuccess(w, result)
	}
}
