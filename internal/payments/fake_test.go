package payments

import (
	"context"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tillstock-backend/pkg/redis"
)

type fakeStripe struct {
	mu sync.Mutex

	accountID  string
	account    *stripe.Account
	session    *stripe.CheckoutSession
	lineItems  []*stripe.LineItem
	link       *stripe.AccountLink
	failures   []error
	calls      map[string]int
	lastKey    *string
	lastParams *stripe.CheckoutSessionParams
	// keys sent on every checkout attempt, failed ones included
	checkoutKeys []string
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{calls: map[string]int{}, accountID: "acct_fake"}
}

func (f *fakeStripe) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *fakeStripe) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStripe) CreateAccount(_ context.Context, params *stripe.AccountParams) (*stripe.Account, error) {
	if err := f.next("create_account"); err != nil {
		return nil, err
	}
	f.lastKey = params.IdempotencyKey
	return &stripe.Account{ID: f.accountID}, nil
}

func (f *fakeStripe) GetAccount(_ context.Context, id string) (*stripe.Account, error) {
	if err := f.next("get_account"); err != nil {
		return nil, err
	}
	if f.account != nil {
		return f.account, nil
	}
	return &stripe.Account{ID: id}, nil
}

func (f *fakeStripe) CreateAccountLink(_ context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	if err := f.next("create_account_link"); err != nil {
		return nil, err
	}
	if f.link != nil {
		return f.link, nil
	}
	return &stripe.AccountLink{URL: "https://connect.stripe.test/" + *params.Account, ExpiresAt: time.Now().Add(5 * time.Minute).Unix()}, nil
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	if params.IdempotencyKey != nil {
		f.checkoutKeys = append(f.checkoutKeys, *params.IdempotencyKey)
	}
	f.mu.Unlock()
	if err := f.next("create_checkout_session"); err != nil {
		return nil, err
	}
	f.lastKey = params.IdempotencyKey
	f.lastParams = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeStripe) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	if err := f.next("get_checkout_session"); err != nil {
		return nil, err
	}
	return f.session, nil
}

func (f *fakeStripe) ListCheckoutLineItems(_ context.Context, _ string) ([]*stripe.LineItem, error) {
	if err := f.next("list_line_items"); err != nil {
		return nil, err
	}
	return f.lineItems, nil
}

// memoryStore is a map-backed cache.Store.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{data: map[string]string{}} }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) CacheKey(parts ...string) string {
	key := "test:cache"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
