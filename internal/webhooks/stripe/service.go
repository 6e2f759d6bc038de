package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tillstock-backend/internal/companies"
	"github.com/angelmondragon/tillstock-backend/internal/orders"
	"github.com/angelmondragon/tillstock-backend/internal/payments"
	"github.com/angelmondragon/tillstock-backend/internal/stock"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
)

type eventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type gateway interface {
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]payments.LineItem, error)
	InvalidateAccountStatus(ctx context.Context, accountID string)
}

type productLookup interface {
	FindByPriceID(ctx context.Context, companyID uuid.UUID, priceID string) (*models.Product, error)
}

type stockDecrementer interface {
	Decrement(ctx context.Context, input stock.MutationInput) (*stock.Result, error)
}

type orderRecorder interface {
	RecordFromSession(ctx context.Context, input orders.RecordInput) (*models.Order, bool, error)
}

type companyStatusWriter interface {
	FindByStripeAccount(ctx context.Context, accountID string) (*models.Company, error)
	ApplyStripeStatus(ctx context.Context, companyID uuid.UUID, status companies.StripeStatus) (*models.Company, error)
}

type ServiceParams struct {
	Verifier  eventVerifier
	Repo      *Repository
	Gateway   gateway
	Products  productLookup
	Stock     stockDecrementer
	Orders    orderRecorder
	Companies companyStatusWriter
	Metrics   *metrics.WebhookMetrics
	Logger    *logger.Logger
}

// Service applies verified processor events. Each line item of a paid
// session is decremented under its own idempotency key, so redelivery only
// fills in what an earlier attempt missed.
type Service struct {
	verifier  eventVerifier
	repo      *Repository
	gateway   gateway
	products  productLookup
	stock     stockDecrementer
	orders    orderRecorder
	companies companyStatusWriter
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Products == nil || params.Stock == nil || params.Orders == nil || params.Companies == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product, stock, order and company dependencies required")
	}
	return &Service{
		verifier:  params.Verifier,
		repo:      params.Repo,
		gateway:   params.Gateway,
		products:  params.Products,
		stock:     params.Stock,
		orders:    params.Orders,
		companies: params.Companies,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// HandlePayload verifies the signature before touching any state, then
// applies the event.
func (s *Service) HandlePayload(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		s.metrics.Observe("unknown", OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "signature header missing")
	}
	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.Observe("unknown", OutcomeRejected)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify webhook signature")
	}
	return s.HandleEvent(ctx, event, payload)
}

// HandleEvent applies an already verified event. The returned error is set
// only when the sender should redeliver.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event, payload []byte) (*Result, error) {
	eventType := string(event.Type)
	if strings.TrimSpace(event.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": eventType})
	}

	row, existed, err := s.repo.Claim(ctx, event.ID, eventType, payload)
	if err != nil {
		s.metrics.Observe(eventType, OutcomeFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	result := &Result{EventID: event.ID, Type: eventType}
	if existed && row.Status.IsTerminal() {
		result.Status = row.Status
		result.Duplicate = true
		s.metrics.Observe(eventType, OutcomeDuplicate)
		return result, nil
	}

	var procErr error
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		procErr = s.applyCheckout(ctx, event, result)
	case stripe.EventTypeAccountUpdated:
		procErr = s.applyAccount(ctx, event, result)
	default:
		result.Status = enums.WebhookEventIgnored
	}

	return result, s.finish(ctx, row, result, procErr)
}

func (s *Service) applyCheckout(ctx context.Context, event stripe.Event, result *Result) error {
	var sess stripe.CheckoutSession
	if err := decode(event, &sess); err != nil {
		return err
	}
	if event.Type == stripe.EventTypeCheckoutSessionCompleted && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// async methods settle later through async_payment_succeeded
		result.Status = enums.WebhookEventIgnored
		return nil
	}
	companyID, err := uuid.Parse(sess.Metadata[payments.MetadataCompanyID])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no company reference")
	}
	result.CompanyID = &companyID
	result.SessionID = sess.ID

	items, err := s.gateway.ListCheckoutLineItems(ctx, sess.ID)
	if err != nil {
		return err
	}

	var itemErrs error
	lines := make([]orders.LineInput, 0, len(items))
	for i, item := range items {
		outcome, line, err := s.applyLineItem(ctx, event.ID, companyID, i, item)
		lines = append(lines, line)
		if err != nil {
			itemErrs = multierr.Append(itemErrs, fmt.Errorf("line item %d: %w", i, err))
			result.Failures = append(result.Failures, failureFor(i, item.PriceID, err))
			continue
		}
		result.Items = append(result.Items, outcome)
	}

	fee := s.applicationFee(ctx, &sess)
	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		email = sess.CustomerEmail
	}
	order, _, err := s.orders.RecordFromSession(ctx, orders.RecordInput{
		CompanyID:           companyID,
		SessionID:           sess.ID,
		CustomerEmail:       email,
		AmountTotalCents:    sess.AmountTotal,
		ApplicationFeeCents: fee,
		Currency:            string(sess.Currency),
		Lines:               lines,
	})
	if err != nil {
		itemErrs = multierr.Append(itemErrs, fmt.Errorf("record order: %w", err))
		result.Failures = append(result.Failures, failureFor(-1, "", err))
	} else {
		result.OrderID = &order.ID
	}
	return itemErrs
}

// applicationFee reads the fee stamped on the session at creation. An
// unreadable value is recorded as zero.
func (s *Service) applicationFee(ctx context.Context, sess *stripe.CheckoutSession) int64 {
	ctx = s.logg.WithField(ctx, "session_id", sess.ID)
	raw, ok := sess.Metadata[payments.MetadataApplicationFee]
	if !ok {
		s.logg.Warn(ctx, "checkout session has no application fee metadata")
		return 0
	}
	fee, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || fee < 0 {
		if err == nil {
			err = fmt.Errorf("negative fee %d", fee)
		}
		s.logg.WarnErr(ctx, "checkout session application fee metadata unreadable", err)
		return 0
	}
	return fee
}

func (s *Service) applyLineItem(ctx context.Context, eventID string, companyID uuid.UUID, index int, item payments.LineItem) (ItemOutcome, orders.LineInput, error) {
	line := orders.LineInput{PriceID: item.PriceID, Quantity: item.Quantity, UnitAmountCents: item.UnitAmountCents}
	outcome := ItemOutcome{Index: index, PriceID: item.PriceID, Quantity: item.Quantity}

	product, err := s.products.FindByPriceID(ctx, companyID, item.PriceID)
	if err != nil {
		return outcome, line, err
	}
	outcome.ProductID = product.ID

	key := fmt.Sprintf("%s:%d", eventID, index)
	note := "checkout line item " + strconv.Itoa(index)
	res, err := s.stock.Decrement(ctx, stock.MutationInput{
		CompanyID:      companyID,
		ProductID:      product.ID,
		Quantity:       item.Quantity,
		Reason:         enums.StockReasonSale,
		IdempotencyKey: &key,
		Note:           &note,
	})
	if err != nil {
		return outcome, line, err
	}
	// only lines that left the shelf are linked to a product, which keeps
	// returns bounded by what was actually decremented
	line.ProductID = &product.ID
	outcome.Duplicate = res.Duplicate
	outcome.InStock = res.Product.InStock
	return outcome, line, nil
}

func (s *Service) applyAccount(ctx context.Context, event stripe.Event, result *Result) error {
	var acct stripe.Account
	if err := decode(event, &acct); err != nil {
		return err
	}
	company, err := s.companies.FindByStripeAccount(ctx, acct.ID)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		result.Status = enums.WebhookEventIgnored
		return nil
	}
	if err != nil {
		return err
	}
	result.CompanyID = &company.ID
	if _, err := s.companies.ApplyStripeStatus(ctx, company.ID, payments.StatusFromAccount(&acct)); err != nil {
		return err
	}
	s.gateway.InvalidateAccountStatus(ctx, acct.ID)
	return nil
}

// finish stores the attempt outcome. Retriable failures are returned so the
// sender redelivers; everything else is acknowledged with the failures in
// the body.
func (s *Service) finish(ctx context.Context, row *models.WebhookEvent, result *Result, procErr error) error {
	retriable := false
	for _, err := range multierr.Errors(procErr) {
		if pkgerrors.IsRetryable(err) {
			retriable = true
		}
	}
	if procErr != nil && len(result.Failures) == 0 {
		result.Failures = append(result.Failures, failureFor(-1, "", procErr))
	}

	var lastError *string
	if procErr != nil {
		msg := procErr.Error()
		lastError = &msg
	}

	outcome := OutcomeApplied
	switch {
	case retriable:
		result.Status = enums.WebhookEventFailed
		outcome = OutcomeFailed
	case result.Status == enums.WebhookEventIgnored:
		outcome = OutcomeIgnored
	default:
		result.Status = enums.WebhookEventApplied
		if procErr != nil {
			outcome = OutcomePartial
		}
	}

	if err := s.repo.Finish(ctx, row.ID, result.Status, lastError); err != nil {
		s.metrics.Observe(result.Type, OutcomeFailed)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update webhook event")
	}
	s.metrics.Observe(result.Type, outcome)

	if procErr != nil && s.logg != nil {
		s.logg.WarnErr(ctx, "webhook event applied with failures", procErr)
	}
	if retriable {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, procErr, "webhook processing incomplete").
			WithDetails(result.Failures)
	}
	return nil
}

func decode(event stripe.Event, into any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "event data missing")
	}
	if err := json.Unmarshal(event.Data.Raw, into); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event object")
	}
	return nil
}

func failureFor(index int, priceID string, err error) ItemFailure {
	return ItemFailure{
		Index:     index,
		PriceID:   priceID,
		Code:      pkgerrors.CodeOf(err),
		Message:   err.Error(),
		Retriable: pkgerrors.IsRetryable(err),
	}
}
