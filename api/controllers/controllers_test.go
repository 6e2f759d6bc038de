package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillstock-backend/api/middleware"
	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	"github.com/angelmondragon/tillstock-backend/internal/returns"
	"github.com/angelmondragon/tillstock-backend/internal/stock"
	"github.com/angelmondragon/tillstock-backend/internal/tenancy"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func tenantRequest(method, target, body string, companyID, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithPrincipal(req.Context(), &tenancy.Principal{UserID: userID})
	ctx = middleware.WithCompanyID(ctx, companyID)
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorBody {
	t.Helper()
	var body types.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

type stubCheckout struct {
	input   payments.CheckoutInput
	session *payments.SessionDetail
	err     error
}

func (s *stubCheckout) CreateCheckoutSession(_ context.Context, input payments.CheckoutInput) (*payments.CheckoutSession, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1", AmountTotal: 3000, Currency: "usd"}, nil
}

func (s *stubCheckout) GetCheckoutSession(_ context.Context, companyID uuid.UUID, sessionID string) (*payments.SessionDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func TestCheckoutCreateSession(t *testing.T) {
	logg := testLogger()
	companyID, userID, productID := uuid.New(), uuid.New(), uuid.New()

	t.Run("passes tenant, line and idempotency key", func(t *testing.T) {
		stub := &stubCheckout{}
		body := `{"productId":"` + productID.String() + `","quantity":3,"customerEmail":"buyer@example.com"}`
		req := tenantRequest(http.MethodPost, "/checkout/session", body, companyID, userID)
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()

		CheckoutCreateSession(stub, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, companyID, stub.input.CompanyID)
		assert.Equal(t, "key-1", stub.input.IdempotencyKey)
		assert.Equal(t, "buyer@example.com", stub.input.CustomerEmail)
		require.Len(t, stub.input.LineItems, 1)
		assert.Equal(t, payments.LineItemInput{ProductID: productID, Quantity: 3}, stub.input.LineItems[0])

		var resp map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "cs_test_1", resp["sessionId"])
		assert.Equal(t, "https://checkout.example/cs_test_1", resp["url"])
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		body := `{"productId":"` + productID.String() + `","quantity":0}`
		req := tenantRequest(http.MethodPost, "/checkout/session", body, companyID, userID)
		rec := httptest.NewRecorder()

		CheckoutCreateSession(&stubCheckout{}, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec).Code)
	})

	t.Run("rejects empty cart", func(t *testing.T) {
		req := tenantRequest(http.MethodPost, "/checkout/session", `{}`, companyID, userID)
		rec := httptest.NewRecorder()

		CheckoutCreateSession(&stubCheckout{}, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("surfaces account not ready", func(t *testing.T) {
		stub := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeAccountNotReady, "connected account cannot accept charges yet")}
		body := `{"productId":"` + productID.String() + `","quantity":1}`
		req := tenantRequest(http.MethodPost, "/checkout/session", body, companyID, userID)
		rec := httptest.NewRecorder()

		CheckoutCreateSession(stub, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(pkgerrors.CodeAccountNotReady), decodeError(t, rec).Code)
	})

	t.Run("requires company context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		CheckoutCreateSession(&stubCheckout{}, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCheckoutGetSession(t *testing.T) {
	logg := testLogger()
	companyID, userID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	CheckoutGetSession(&stubCheckout{}, logg).ServeHTTP(rec, tenantRequest(http.MethodGet, "/checkout/session", "", companyID, userID))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stub := &stubCheckout{session: &payments.SessionDetail{ID: "cs_1", Status: "complete", PaymentStatus: "paid"}}
	rec = httptest.NewRecorder()
	CheckoutGetSession(stub, logg).ServeHTTP(rec, tenantRequest(http.MethodGet, "/checkout/session?session_id=cs_1", "", companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"paid"`)

	stub = &stubCheckout{err: pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another company")}
	rec = httptest.NewRecorder()
	CheckoutGetSession(stub, logg).ServeHTTP(rec, tenantRequest(http.MethodGet, "/checkout/session?session_id=cs_2", "", companyID, userID))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

type stubLedger struct {
	input     stock.MutationInput
	duplicate bool
	err       error
	rows      []models.StockTransaction
	limit     int
}

func (s *stubLedger) Increment(_ context.Context, input stock.MutationInput) (*stock.Result, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	product := &models.Product{ID: input.ProductID, CompanyID: input.CompanyID, InStock: 15}
	return &stock.Result{Product: product, Duplicate: s.duplicate}, nil
}

func (s *stubLedger) ListTransactions(_ context.Context, companyID, productID uuid.UUID, limit int) ([]models.StockTransaction, error) {
	s.limit = limit
	return s.rows, nil
}

func TestStockRestock(t *testing.T) {
	logg := testLogger()
	companyID, userID, productID := uuid.New(), uuid.New(), uuid.New()
	body := `{"product_id":"` + productID.String() + `","quantity":5,"note":"  weekly delivery "}`

	t.Run("created", func(t *testing.T) {
		ledger := &stubLedger{}
		req := tenantRequest(http.MethodPost, "/restocks", body, companyID, userID)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()

		StockRestock(ledger, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, enums.StockReasonRestock, ledger.input.Reason)
		assert.Equal(t, 5, ledger.input.Quantity)
		require.NotNil(t, ledger.input.Note)
		assert.Equal(t, "weekly delivery", *ledger.input.Note)
		require.NotNil(t, ledger.input.IdempotencyKey)
		assert.Equal(t, "restock:"+companyID.String()+":abc", *ledger.input.IdempotencyKey)
		require.NotNil(t, ledger.input.ActorID)
		assert.Equal(t, userID, *ledger.input.ActorID)
		assert.Contains(t, rec.Body.String(), `"in_stock":15`)
	})

	t.Run("replayed key answers ok", func(t *testing.T) {
		ledger := &stubLedger{duplicate: true}
		req := tenantRequest(http.MethodPost, "/restocks", body, companyID, userID)
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()

		StockRestock(ledger, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		ledger := &stubLedger{}
		req := tenantRequest(http.MethodPost, "/restocks", `{"product_id":"`+productID.String()+`","quantity":0}`, companyID, userID)
		rec := httptest.NewRecorder()

		StockRestock(ledger, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, uuid.Nil, ledger.input.ProductID)
	})

	t.Run("unknown product", func(t *testing.T) {
		ledger := &stubLedger{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
		req := tenantRequest(http.MethodPost, "/restocks", body, companyID, userID)
		rec := httptest.NewRecorder()

		StockRestock(ledger, logg).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStockTransactions(t *testing.T) {
	logg := testLogger()
	companyID, userID, productID := uuid.New(), uuid.New(), uuid.New()
	ledger := &stubLedger{rows: []models.StockTransaction{
		{ID: uuid.New(), ProductID: productID, Delta: 5, Reason: enums.StockReasonRestock, BalanceAfter: 15},
	}}

	req := tenantRequest(http.MethodGet, "/products/"+productID.String()+"/transactions?limit=10", "", companyID, userID)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productId", productID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()

	StockTransactions(ledger, logg).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, ledger.limit)
	assert.Contains(t, rec.Body.String(), `"reason":"restock"`)
	assert.Contains(t, rec.Body.String(), `"balance_after":15`)
}

type stubReturns struct {
	input returns.CreateReturnInput
	err   error
}

func (s *stubReturns) CreateReturn(_ context.Context, input returns.CreateReturnInput) (*models.Return, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Return{
		ID:        uuid.New(),
		OrderID:   input.OrderID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Reason:    input.Reason,
		Status:    enums.ReturnStatusCreated,
	}, nil
}

func (s *stubReturns) ListReturns(_ context.Context, companyID, orderID uuid.UUID) ([]models.Return, error) {
	return nil, s.err
}

func TestReturnCreate(t *testing.T) {
	logg := testLogger()
	companyID, userID, orderID, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	body := `{"order_id":"` + orderID.String() + `","product_id":"` + productID.String() + `","quantity":1,"reason":"damaged"}`

	t.Run("success envelope", func(t *testing.T) {
		svc := &stubReturns{}
		rec := httptest.NewRecorder()
		ReturnCreate(svc, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/returns", body, companyID, userID))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			Success bool              `json:"success"`
			Return  returns.ReturnDTO `json:"return"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, orderID, resp.Return.OrderID)
		assert.Equal(t, "damaged", resp.Return.Reason)
		assert.Equal(t, companyID, svc.input.CompanyID)
	})

	t.Run("missing reason", func(t *testing.T) {
		bad := `{"order_id":"` + orderID.String() + `","product_id":"` + productID.String() + `","quantity":1}`
		rec := httptest.NewRecorder()
		ReturnCreate(&stubReturns{}, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/returns", bad, companyID, userID))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"reason"`)
	})

	t.Run("order not found", func(t *testing.T) {
		svc := &stubReturns{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
		rec := httptest.NewRecorder()
		ReturnCreate(svc, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/returns", body, companyID, userID))

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "order not found", decodeError(t, rec).Error)
	})
}

func TestReturnListRequiresOrder(t *testing.T) {
	rec := httptest.NewRecorder()
	ReturnList(&stubReturns{}, testLogger()).ServeHTTP(rec, tenantRequest(http.MethodGet, "/returns", "", uuid.New(), uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	ReturnList(&stubReturns{}, testLogger()).ServeHTTP(rec, tenantRequest(http.MethodGet, "/returns?order_id="+uuid.NewString(), "", uuid.New(), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"returns":[]}`, rec.Body.String())
}

type stubFees struct {
	got decimal.Decimal
}

func (s *stubFees) GetPlatformFee(context.Context, uuid.UUID) (*companies.PlatformFeeDTO, error) {
	return &companies.PlatformFeeDTO{PlatformFeePercent: "2.5"}, nil
}

func (s *stubFees) UpdatePlatformFee(_ context.Context, _ uuid.UUID, _ *uuid.UUID, fee decimal.Decimal) (*companies.PlatformFeeDTO, error) {
	s.got = fee
	if err := companies.ValidatePlatformFee(fee); err != nil {
		return nil, err
	}
	return &companies.PlatformFeeDTO{PlatformFeePercent: json.Number(fee.String())}, nil
}

func TestPlatformFee(t *testing.T) {
	logg := testLogger()
	companyID, userID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	PlatformFeeGet(&stubFees{}, logg).ServeHTTP(rec, tenantRequest(http.MethodGet, "/platform-fee", "", companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"platformFeePercent":2.5}`, rec.Body.String())

	cases := []struct {
		name string
		body string
		want int
	}{
		{name: "valid", body: `{"platformFeePercent":3.25}`, want: http.StatusOK},
		{name: "upper bound", body: `{"platformFeePercent":10}`, want: http.StatusOK},
		{name: "too large", body: `{"platformFeePercent":10.01}`, want: http.StatusBadRequest},
		{name: "negative", body: `{"platformFeePercent":-1}`, want: http.StatusBadRequest},
		{name: "too precise", body: `{"platformFeePercent":1.234}`, want: http.StatusBadRequest},
		{name: "missing", body: `{}`, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			PlatformFeeUpdate(&stubFees{}, logg).ServeHTTP(rec, tenantRequest(http.MethodPut, "/platform-fee", tc.body, companyID, userID))
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

type stubConnect struct {
	company    *models.Company
	returnURL  string
	refreshURL string
	err        error
}

func (s *stubConnect) CreateConnectedAccount(context.Context, uuid.UUID) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "acct_123", nil
}

func (s *stubConnect) CreateOnboardingLink(_ context.Context, _ uuid.UUID, returnURL, refreshURL string) (*payments.OnboardingLink, error) {
	s.returnURL, s.refreshURL = returnURL, refreshURL
	if s.err != nil {
		return nil, s.err
	}
	return &payments.OnboardingLink{URL: "https://connect.example/onboard"}, nil
}

func (s *stubConnect) SyncAccountStatus(context.Context, uuid.UUID) (*models.Company, error) {
	return s.company, s.err
}

func TestStripeConnectEndpoints(t *testing.T) {
	logg := testLogger()
	companyID, userID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	StripeCreateConnectedAccount(&stubConnect{}, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/stripe/connected-account", "", companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stripe_account_id":"acct_123"}`, rec.Body.String())

	stub := &stubConnect{}
	rec = httptest.NewRecorder()
	StripeOnboardingLink(stub, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/stripe/onboarding-link", "", companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.returnURL)

	rec = httptest.NewRecorder()
	body := `{"return_url":"https://app.example/done","refresh_url":"https://app.example/again"}`
	StripeOnboardingLink(stub, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/stripe/onboarding-link", body, companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example/done", stub.returnURL)
	assert.Equal(t, "https://app.example/again", stub.refreshURL)

	rec = httptest.NewRecorder()
	missing := &stubConnect{err: pkgerrors.New(pkgerrors.CodeNotFound, "company has no connected account")}
	StripeOnboardingLink(missing, logg).ServeHTTP(rec, tenantRequest(http.MethodPost, "/stripe/onboarding-link", "", companyID, userID))
	require.Equal(t, http.StatusNotFound, rec.Code)

	account := "acct_123"
	status := &stubConnect{company: &models.Company{ID: companyID, StripeAccountID: &account, ChargesEnabled: true, DetailsSubmitted: true, OnboardingComplete: true}}
	rec = httptest.NewRecorder()
	StripeStatus(status, logg).ServeHTTP(rec, tenantRequest(http.MethodGet, "/stripe-status", "", companyID, userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stripe_account_id":"acct_123","charges_enabled":true,"payouts_enabled":false,"onboarding_complete":true,"details_submitted":true}`, rec.Body.String())
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	logg := testLogger()

	rec := httptest.NewRecorder()
	HealthReady("test", logg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Tillstock-Env"))

	rec = httptest.NewRecorder()
	HealthReady("test", logg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("connection refused")}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeDependency), body.Code)
	assert.Equal(t, map[string]any{"db": "ok", "redis": "down"}, body.Details)
}
