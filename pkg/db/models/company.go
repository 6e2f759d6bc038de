package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Company is the tenant: it owns products, the platform fee setting and the
// Stripe Connect account that receives checkout proceeds.
type Company struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name               string          `gorm:"column:name;not null"`
	PlatformFeePercent decimal.Decimal `gorm:"column:platform_fee_percent;type:numeric(5,2);not null;default:0"`
	StripeAccountID    *string         `gorm:"column:stripe_account_id;uniqueIndex"`
	ChargesEnabled     bool            `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled     bool            `gorm:"column:payouts_enabled;not null;default:false"`
	DetailsSubmitted   bool            `gorm:"column:details_submitted;not null;default:false"`
	OnboardingComplete bool            `gorm:"column:onboarding_complete;not null;default:false"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Company) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// HasConnectedAccount reports whether onboarding has at least started.
func (c *Company) HasConnectedAccount() bool {
	return c != nil && c.StripeAccountID != nil && *c.StripeAccountID != ""
}
