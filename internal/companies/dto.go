package companies

import (
	"encoding/json"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

// StripeStatus is the capability snapshot of a connected account.
type StripeStatus struct {
	ChargesEnabled   bool `json:"charges_enabled"`
	PayoutsEnabled   bool `json:"payouts_enabled"`
	DetailsSubmitted bool `json:"details_submitted"`
}

// OnboardingComplete holds once the merchant submitted details and can charge.
func (s StripeStatus) OnboardingComplete() bool {
	return s.DetailsSubmitted && s.ChargesEnabled
}

func statusOf(c *models.Company) StripeStatus {
	return StripeStatus{
		ChargesEnabled:   c.ChargesEnabled,
		PayoutsEnabled:   c.PayoutsEnabled,
		DetailsSubmitted: c.DetailsSubmitted,
	}
}

type PlatformFeeDTO struct {
	PlatformFeePercent json.Number `json:"platformFeePercent"`
}

// StripeStatusDTO is served by the stripe-status endpoint.
type StripeStatusDTO struct {
	StripeAccountID    *string `json:"stripe_account_id"`
	ChargesEnabled     bool    `json:"charges_enabled"`
	PayoutsEnabled     bool    `json:"payouts_enabled"`
	OnboardingComplete bool    `json:"onboarding_complete"`
	DetailsSubmitted   bool    `json:"details_submitted"`
}

func feeDTO(c *models.Company) *PlatformFeeDTO {
	return &PlatformFeeDTO{PlatformFeePercent: json.Number(c.PlatformFeePercent.String())}
}

func StripeStatusFromModel(c *models.Company) *StripeStatusDTO {
	return &StripeStatusDTO{
		StripeAccountID:    c.StripeAccountID,
		ChargesEnabled:     c.ChargesEnabled,
		PayoutsEnabled:     c.PayoutsEnabled,
		OnboardingComplete: c.OnboardingComplete,
		DetailsSubmitted:   c.DetailsSubmitted,
	}
}
