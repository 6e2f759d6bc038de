package payments

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/pkg/cache"
	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
)

// Metadata keys stamped on checkout sessions and read back by the webhook
// processor.
const (
	MetadataCompanyID      = "company_id"
	MetadataApplicationFee = "application_fee_cents"
)

type companyStore interface {
	Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error)
	AttachStripeAccount(ctx context.Context, companyID uuid.UUID, accountID string) (string, error)
	ApplyStripeStatus(ctx context.Context, companyID uuid.UUID, status companies.StripeStatus) (*models.Company, error)
}

type productLookup interface {
	FindActiveByID(ctx context.Context, companyID, productID uuid.UUID) (*models.Product, error)
}

type ServiceParams struct {
	Stripe             StripeAPI
	Companies          companyStore
	Products           productLookup
	Config             config.StripeConfig
	AccountStatusCache *cache.Cache[companies.StripeStatus]
	SessionCache       *cache.Cache[SessionDetail]
	Metrics            *metrics.GatewayMetrics
	Logger             *logger.Logger
}

// Service is the payment gateway: connected accounts, onboarding links and
// checkout sessions with the platform fee split.
type Service struct {
	stripe        StripeAPI
	companies     companyStore
	products      productLookup
	cfg           config.StripeConfig
	accountStatus *cache.Cache[companies.StripeStatus]
	sessions      *cache.Cache[SessionDetail]
	metrics       *metrics.GatewayMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe api required")
	}
	if params.Companies == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "company store required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product lookup required")
	}
	return &Service{
		stripe:        params.Stripe,
		companies:     params.Companies,
		products:      params.Products,
		cfg:           params.Config,
		accountStatus: params.AccountStatusCache,
		sessions:      params.SessionCache,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// CreateConnectedAccount returns the tenant's Express account, creating it on
// first use.
func (s *Service) CreateConnectedAccount(ctx context.Context, companyID uuid.UUID) (string, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return "", err
	}
	if company.HasConnectedAccount() {
		return *company.StripeAccountID, nil
	}

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(s.country()),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.AddMetadata(MetadataCompanyID, companyID.String())
	params.SetIdempotencyKey("connect-account:" + companyID.String())

	var acct *stripe.Account
	err = s.call(ctx, "create_account", true, func(ctx context.Context) error {
		var callErr error
		acct, callErr = s.stripe.CreateAccount(ctx, params)
		return callErr
	})
	if err != nil {
		return "", err
	}

	stored, err := s.companies.AttachStripeAccount(ctx, companyID, acct.ID)
	if err != nil {
		return "", err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"company_id":        companyID.String(),
			"stripe_account_id": stored,
		}), "connected account ready")
	}
	return stored, nil
}

// CreateOnboardingLink issues a short-lived hosted onboarding URL. Links are
// single use; callers regenerate once expired.
func (s *Service) CreateOnboardingLink(ctx context.Context, companyID uuid.UUID, returnURL, refreshURL string) (*OnboardingLink, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !company.HasConnectedAccount() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company has no connected account")
	}
	returnURL = firstNonEmpty(returnURL, s.cfg.OnboardingReturnURL)
	refreshURL = firstNonEmpty(refreshURL, s.cfg.OnboardingRefreshURL)
	if returnURL == "" || refreshURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return_url and refresh_url are required")
	}

	params := &stripe.AccountLinkParams{
		Account:    company.StripeAccountID,
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	var link *stripe.AccountLink
	err = s.call(ctx, "create_account_link", false, func(ctx context.Context) error {
		var callErr error
		link, callErr = s.stripe.CreateAccountLink(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &OnboardingLink{URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0).UTC()}, nil
}

// CreateCheckoutSession prices the cart from local products and opens a
// hosted session whose proceeds go to the tenant minus the platform fee.
func (s *Service) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	if len(input.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	// without a caller key, retries inside this request still share one
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	company, err := s.companies.Get(ctx, input.CompanyID)
	if err != nil {
		return nil, err
	}
	if !company.HasConnectedAccount() || !company.ChargesEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeAccountNotReady, "connected account cannot accept charges yet")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(firstNonEmpty(input.SuccessURL, s.cfg.SuccessURL)),
		CancelURL:  stripe.String(firstNonEmpty(input.CancelURL, s.cfg.CancelURL)),
	}
	var (
		total    int64
		currency string
	)
	for i, line := range input.LineItems {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
				WithDetails(map[string]any{"line_item": i})
		}
		product, err := s.products.FindActiveByID(ctx, input.CompanyID, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.StripePriceID == nil || *product.StripePriceID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product has no processor price").
				WithDetails(map[string]any{"product_id": product.ID})
		}
		if currency == "" {
			currency = product.Currency
		} else if !strings.EqualFold(currency, product.Currency) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all line items must share one currency")
		}
		total += product.PriceCents * int64(line.Quantity)
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    product.StripePriceID,
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}

	fee := ApplicationFee(total, company.PlatformFeePercent)
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: company.StripeAccountID,
		},
		Metadata: map[string]string{MetadataCompanyID: input.CompanyID.String()},
	}
	if fee > 0 {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(fee)
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata(MetadataCompanyID, input.CompanyID.String())
	params.AddMetadata(MetadataApplicationFee, strconv.FormatInt(fee, 10))
	params.SetIdempotencyKey("checkout:" + input.CompanyID.String() + ":" + key)

	var sess *stripe.CheckoutSession
	err = s.call(ctx, "create_checkout_session", true, func(ctx context.Context) error {
		var callErr error
		sess, callErr = s.stripe.CreateCheckoutSession(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	amount := sess.AmountTotal
	if amount == 0 {
		amount = total
	}
	return &CheckoutSession{
		ID:             sess.ID,
		URL:            sess.URL,
		AmountTotal:    amount,
		ApplicationFee: fee,
		Currency:       currency,
	}, nil
}

// GetCheckoutSession reads a session through the session cache and rejects
// sessions that belong to another tenant.
func (s *Service) GetCheckoutSession(ctx context.Context, companyID uuid.UUID, sessionID string) (*SessionDetail, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	detail, err := s.sessions.GetOrLoad(ctx, sessionID, func(ctx context.Context) (SessionDetail, error) {
		var sess *stripe.CheckoutSession
		err := s.call(ctx, "get_checkout_session", true, func(ctx context.Context) error {
			var callErr error
			sess, callErr = s.stripe.GetCheckoutSession(ctx, sessionID)
			return callErr
		})
		if err != nil {
			return SessionDetail{}, err
		}
		return sessionDetail(sess), nil
	})
	if err != nil {
		return nil, err
	}
	if detail.CompanyID != companyID.String() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another company")
	}
	return &detail, nil
}

// ListCheckoutLineItems returns the priced lines of a session.
func (s *Service) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	var raw []*stripe.LineItem
	err := s.call(ctx, "list_line_items", true, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.stripe.ListCheckoutLineItems(ctx, sessionID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	items := make([]LineItem, 0, len(raw))
	for _, li := range raw {
		if li == nil {
			continue
		}
		item := LineItem{Quantity: int(li.Quantity), AmountTotal: li.AmountTotal}
		if li.Price != nil {
			item.PriceID = li.Price.ID
			item.UnitAmountCents = li.Price.UnitAmount
		}
		items = append(items, item)
	}
	return items, nil
}

// GetAccountStatus reads the connected account's capabilities, cached for
// the configured TTL.
func (s *Service) GetAccountStatus(ctx context.Context, accountID string) (companies.StripeStatus, error) {
	return s.accountStatus.GetOrLoad(ctx, accountID, func(ctx context.Context) (companies.StripeStatus, error) {
		var acct *stripe.Account
		err := s.call(ctx, "get_account", true, func(ctx context.Context) error {
			var callErr error
			acct, callErr = s.stripe.GetAccount(ctx, accountID)
			return callErr
		})
		if err != nil {
			return companies.StripeStatus{}, err
		}
		return StatusFromAccount(acct), nil
	})
}

// InvalidateAccountStatus drops the cached capabilities of accountID.
func (s *Service) InvalidateAccountStatus(ctx context.Context, accountID string) {
	if err := s.accountStatus.Invalidate(ctx, accountID); err != nil && s.logg != nil {
		s.logg.WarnErr(ctx, "account status cache invalidation failed", err)
	}
}

// SyncAccountStatus persists the processor's view of the tenant's account.
// Tenants without an account are returned unchanged.
func (s *Service) SyncAccountStatus(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !company.HasConnectedAccount() {
		return company, nil
	}
	status, err := s.GetAccountStatus(ctx, *company.StripeAccountID)
	if err != nil {
		return nil, err
	}
	return s.companies.ApplyStripeStatus(ctx, companyID, status)
}

// StatusFromAccount extracts the capability flags from a Stripe account.
func StatusFromAccount(acct *stripe.Account) companies.StripeStatus {
	if acct == nil {
		return companies.StripeStatus{}
	}
	return companies.StripeStatus{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
}

// call runs fn under the per-call timeout. When retriable is set (the call
// carries an idempotency key or only reads) transient failures are retried
// with capped exponential backoff.
func (s *Service) call(ctx context.Context, operation string, retriable bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := func(ctx context.Context) error {
		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		gw := classify(operation, err)
		if retriable && gw.Retriable {
			return retry.RetryableError(gw)
		}
		return gw
	}

	var err error
	if retriable && s.cfg.MaxRetries > 0 {
		err = retry.Do(ctx, s.backoff(), attempt)
	} else {
		err = attempt(ctx)
	}

	outcome := "success"
	if err != nil {
		gw := classify(operation, err)
		outcome = "terminal"
		if gw.Retriable {
			outcome = "retriable"
		}
		s.metrics.Observe(operation, outcome, time.Since(start))
		if s.logg != nil {
			s.logg.WarnErr(s.logg.WithFields(ctx, map[string]any{
				"operation": operation,
				"retriable": gw.Retriable,
				"status":    gw.StatusCode,
			}), "stripe call failed", gw.Err)
		}
		return toAppError(gw)
	}
	s.metrics.Observe(operation, outcome, time.Since(start))
	return nil
}

func (s *Service) backoff() retry.Backoff {
	base := s.cfg.RetryBaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if s.cfg.RetryMaxDelay > 0 {
		b = retry.WithCappedDuration(s.cfg.RetryMaxDelay, b)
	}
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(s.cfg.MaxRetries, b)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *Service) country() string {
	if c := strings.TrimSpace(s.cfg.ConnectCountry); c != "" {
		return strings.ToUpper(c)
	}
	return "US"
}

func sessionDetail(sess *stripe.CheckoutSession) SessionDetail {
	if sess == nil {
		return SessionDetail{}
	}
	detail := SessionDetail{
		ID:            sess.ID,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		URL:           sess.URL,
		CompanyID:     sess.Metadata[MetadataCompanyID],
		CustomerEmail: sess.CustomerEmail,
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		detail.CustomerEmail = sess.CustomerDetails.Email
	}
	return detail
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
