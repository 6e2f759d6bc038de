package companies

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/internal/audit"
	"github.com/angelmondragon/tillstock-backend/pkg/db"
	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox"
	"github.com/angelmondragon/tillstock-backend/pkg/outbox/payloads"
)

var (
	MinPlatformFee = decimal.Zero
	MaxPlatformFee = decimal.NewFromInt(10)
)

// ValidatePlatformFee enforces the [0,10] range with at most two decimals.
func ValidatePlatformFee(fee decimal.Decimal) error {
	if fee.LessThan(MinPlatformFee) || fee.GreaterThan(MaxPlatformFee) {
		return pkgerrors.New(pkgerrors.CodeValidation, "platformFeePercent must be between 0 and 10").
			WithDetails(map[string]any{"platformFeePercent": fee.String()})
	}
	if !fee.Equal(fee.Truncate(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "platformFeePercent allows at most two decimal places").
			WithDetails(map[string]any{"platformFeePercent": fee.String()})
	}
	return nil
}

type ServiceParams struct {
	Tx     db.TxRunner
	Repo   *Repository
	Audit  audit.Recorder
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type Service struct {
	tx     db.TxRunner
	repo   *Repository
	audit  audit.Recorder
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "company repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{
		tx:     params.Tx,
		repo:   params.Repo,
		audit:  params.Audit,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

func (s *Service) Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	return s.repo.FindByID(ctx, companyID)
}

func (s *Service) GetPlatformFee(ctx context.Context, companyID uuid.UUID) (*PlatformFeeDTO, error) {
	company, err := s.repo.FindByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return feeDTO(company), nil
}

func (s *Service) UpdatePlatformFee(ctx context.Context, companyID uuid.UUID, actorID *uuid.UUID, fee decimal.Decimal) (*PlatformFeeDTO, error) {
	if err := ValidatePlatformFee(fee); err != nil {
		return nil, err
	}

	var updated *models.Company
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, companyID)
		if err != nil {
			return err
		}
		if err := repo.UpdatePlatformFee(ctx, companyID, fee); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			CompanyID:  companyID,
			ActorID:    actorID,
			Action:     audit.ActionPlatformFeeUpdated,
			EntityType: audit.EntityCompany,
			EntityID:   companyID,
			Metadata: map[string]any{
				"from": current.PlatformFeePercent.String(),
				"to":   fee.String(),
			},
		}); err != nil {
			return err
		}
		current.PlatformFeePercent = fee
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return feeDTO(updated), nil
}

// AttachStripeAccount records a newly created connected account. When a
// concurrent caller already stored one, that stored id wins and is returned.
func (s *Service) AttachStripeAccount(ctx context.Context, companyID uuid.UUID, accountID string) (string, error) {
	stored := accountID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SetStripeAccountIfEmpty(ctx, companyID, accountID)
		if err != nil {
			return err
		}
		if !ok {
			company, err := repo.FindByID(ctx, companyID)
			if err != nil {
				return err
			}
			if !company.HasConnectedAccount() {
				return fmt.Errorf("company %s has no stripe account after conditional update", companyID)
			}
			stored = *company.StripeAccountID
			return nil
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			CompanyID:  companyID,
			Action:     audit.ActionStripeAccountCreated,
			EntityType: audit.EntityCompany,
			EntityID:   companyID,
			Metadata:   map[string]any{"stripe_account_id": accountID},
		})
	})
	if err != nil {
		return "", err
	}
	return stored, nil
}

// ApplyStripeStatus persists the capability flags and emits an event when any
// of them changed. It returns the refreshed company.
func (s *Service) ApplyStripeStatus(ctx context.Context, companyID uuid.UUID, status StripeStatus) (*models.Company, error) {
	var result *models.Company
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		company, err := repo.FindByID(ctx, companyID)
		if err != nil {
			return err
		}
		prev := statusOf(company)
		if prev == status && company.OnboardingComplete == status.OnboardingComplete() {
			result = company
			return nil
		}
		if err := repo.UpdateStripeStatus(ctx, companyID, status); err != nil {
			return err
		}
		company.ChargesEnabled = status.ChargesEnabled
		company.PayoutsEnabled = status.PayoutsEnabled
		company.DetailsSubmitted = status.DetailsSubmitted
		company.OnboardingComplete = status.OnboardingComplete()

		if err := s.audit.Record(ctx, tx, audit.Entry{
			CompanyID:  companyID,
			Action:     audit.ActionStripeStatusSynced,
			EntityType: audit.EntityCompany,
			EntityID:   companyID,
			Metadata: map[string]any{
				"charges_enabled":   status.ChargesEnabled,
				"payouts_enabled":   status.PayoutsEnabled,
				"details_submitted": status.DetailsSubmitted,
			},
		}); err != nil {
			return err
		}

		accountID := ""
		if company.StripeAccountID != nil {
			accountID = *company.StripeAccountID
		}
		if err := s.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventAccountStatusChanged,
			AggregateID: companyID,
			Producer:    &outbox.Producer{CompanyID: companyID, Component: "stripe"},
			Data: payloads.AccountStatusChangedEvent{
				CompanyID:          companyID,
				StripeAccountID:    accountID,
				ChargesEnabled:     status.ChargesEnabled,
				PayoutsEnabled:     status.PayoutsEnabled,
				DetailsSubmitted:   status.DetailsSubmitted,
				OnboardingComplete: status.OnboardingComplete(),
			},
		}); err != nil {
			return err
		}
		result = company
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil && result != nil {
		s.logg.Debug(s.logg.WithCompanyID(ctx, companyID.String()), "stripe account status applied")
	}
	return result, nil
}

// FindByStripeAccount maps a connected account back to its tenant.
func (s *Service) FindByStripeAccount(ctx context.Context, accountID string) (*models.Company, error) {
	return s.repo.FindByStripeAccountID(ctx, accountID)
}

// ListConnected pages through tenants with a connected account.
func (s *Service) ListConnected(ctx context.Context, after uuid.UUID, limit int) ([]models.Company, error) {
	return s.repo.ListConnected(ctx, after, limit)
}
