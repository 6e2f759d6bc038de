package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
)

// GatewayError classifies a failed processor call.
type GatewayError struct {
	Operation  string
	Retriable  bool
	StatusCode int
	StripeCode string
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("stripe %s failed (status=%d retriable=%t): %v", e.Operation, e.StatusCode, e.Retriable, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// classify sorts errors into retriable (network, timeout, 409, 429, 5xx)
// and terminal (other 4xx, caller cancellation).
func classify(operation string, err error) *GatewayError {
	var existing *GatewayError
	if errors.As(err, &existing) {
		return existing
	}
	gw := &GatewayError{Operation: operation, Err: err}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gw.StatusCode = stripeErr.HTTPStatusCode
		gw.StripeCode = string(stripeErr.Code)
		switch {
		case stripeErr.HTTPStatusCode == 0:
			gw.Retriable = true
		case stripeErr.HTTPStatusCode == http.StatusConflict,
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			gw.Retriable = true
		}
		return gw
	}

	if errors.Is(err, context.Canceled) {
		return gw
	}
	// Transport failures and deadlines never reached a definitive answer.
	gw.Retriable = true
	return gw
}

// toAppError maps a gateway failure onto the API error table.
func toAppError(gw *GatewayError) error {
	if gw.StatusCode == http.StatusNotFound {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, gw, "stripe resource not found")
	}
	if gw.Retriable {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayRetriable, gw, "payment processor unavailable")
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayTerminal, gw, "payment processor rejected "+gw.Operation).
		WithDetails(map[string]any{
			"operation":   gw.Operation,
			"status":      gw.StatusCode,
			"stripe_code": gw.StripeCode,
		})
}

// AsGatewayError extracts the classification from an error chain.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw, true
	}
	return nil, false
}
