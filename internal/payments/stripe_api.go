package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/angelmondragon/tillstock-backend/pkg/stripe"
)

// StripeAPI is the subset of Stripe the gateway calls. Tests substitute fakes.
type StripeAPI interface {
	CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error)
	GetAccount(ctx context.Context, id string) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
}

type stripeAPI struct{}

// NewStripeAPI binds the gateway to the globally configured Stripe backend.
// The client argument proves pkg/stripe initialised keys and timeouts first.
func NewStripeAPI(client *pkgstripe.Client) StripeAPI {
	if client == nil {
		return nil
	}
	return stripeAPI{}
}

func (stripeAPI) CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error) {
	params.Context = ctx
	return account.New(params)
}

func (stripeAPI) GetAccount(ctx context.Context, id string) (*stripe.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	return account.GetByID(id, params)
}

func (stripeAPI) CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	params.Context = ctx
	return accountlink.New(params)
}

func (stripeAPI) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return session.New(params)
}

func (stripeAPI) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

func (stripeAPI) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	iter := session.ListLineItems(params)
	var items []*stripe.LineItem
	for iter.Next() {
		items = append(items, iter.LineItem())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
