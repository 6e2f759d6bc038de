// Package stripe configures the stripe-go backend and verifies webhooks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

const defaultTolerance = 5 * time.Minute

var errNoSigningSecret = errors.New("stripe webhook signing secret is not configured")

// keyPrefixes lists the secret and restricted key prefixes valid per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client is proof that the process-wide stripe-go backend is configured.
// The SDK keeps its key and backend in package state, so there is one
// Client per process.
type Client struct {
	mode      string
	secret    string
	timeout   time.Duration
	tolerance time.Duration
}

// NewClient installs the API key and an HTTP backend with SDK retries off;
// the gateway applies its own retry policy.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	key := strings.TrimSpace(cfg.APIKey)
	if err := checkKey(mode, key); err != nil {
		return nil, err
	}
	verifier, err := NewWebhookVerifier(cfg.Secret)
	if err != nil {
		return nil, err
	}
	verifier.mode = mode
	verifier.timeout = cfg.Timeout
	if cfg.WebhookTolerance > 0 {
		verifier.tolerance = cfg.WebhookTolerance
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "tillstock-backend"})
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &sdkLogger{logg: logg, ctx: ctx},
	}))

	logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe backend configured")
	return verifier, nil
}

// NewWebhookVerifier returns a client that can only check webhook payloads.
func NewWebhookVerifier(signingSecret string) (*Client, error) {
	signingSecret = strings.TrimSpace(signingSecret)
	if signingSecret == "" {
		return nil, errNoSigningSecret
	}
	return &Client{mode: "test", secret: signingSecret, tolerance: defaultTolerance}, nil
}

func checkKey(mode, key string) error {
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return fmt.Errorf("stripe mode must be test or live, got %q", mode)
	}
	if key == "" {
		return errors.New("stripe api key is required")
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// Timeout is the HTTP deadline applied to each Stripe call.
func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

// VerifyEvent checks the signature over the raw body and decodes the event.
// Events rendered for another API version are accepted; the handlers only
// read fields that are stable across versions.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.secret == "" {
		return stripe.Event{}, errNoSigningSecret
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.secret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

// sdkLogger routes stripe-go's own diagnostics through the service logger.
// Request-level chatter stays at debug.
type sdkLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (l *sdkLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Errorf(format string, v ...any) {
	l.logg.WarnErr(l.ctx, "stripe sdk error", fmt.Errorf(format, v...))
}
