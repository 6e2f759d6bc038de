package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v84/webhook"
)

// SignPayload produces a Stripe-Signature header value for payload. Tests and
// local tooling use it to replay webhook fixtures.
func SignPayload(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}
