package enums

// WebhookEventStatus is the lifecycle of a stored processor event.
type WebhookEventStatus string

const (
	WebhookEventReceived WebhookEventStatus = "received"
	WebhookEventApplied  WebhookEventStatus = "applied"
	WebhookEventFailed   WebhookEventStatus = "failed"
	WebhookEventIgnored  WebhookEventStatus = "ignored"
)

// String implements fmt.Stringer.
func (s WebhookEventStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the event needs no further processing.
func (s WebhookEventStatus) IsTerminal() bool {
	return s == WebhookEventApplied || s == WebhookEventIgnored
}
