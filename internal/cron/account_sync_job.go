package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

const accountSyncPageSize = 100

type connectedCompanies interface {
	ListConnected(ctx context.Context, after uuid.UUID, limit int) ([]models.Company, error)
}

type accountSyncer interface {
	InvalidateAccountStatus(ctx context.Context, accountID string)
	SyncAccountStatus(ctx context.Context, companyID uuid.UUID) (*models.Company, error)
}

type AccountSyncJobParams struct {
	Logger    *logger.Logger
	Companies connectedCompanies
	Gateway   accountSyncer
	PageSize  int
}

// NewAccountSyncJob reconciles stored connected-account capabilities with
// the processor, catching any account.updated webhook that never arrived.
func NewAccountSyncJob(params AccountSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Companies == nil || params.Gateway == nil {
		return nil, fmt.Errorf("company lister and gateway required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = accountSyncPageSize
	}
	return &accountSyncJob{
		logg:      params.Logger,
		companies: params.Companies,
		gateway:   params.Gateway,
		pageSize:  pageSize,
	}, nil
}

type accountSyncJob struct {
	logg      *logger.Logger
	companies connectedCompanies
	gateway   accountSyncer
	pageSize  int
}

func (j *accountSyncJob) Name() string { return "stripe-account-sync" }

// Run visits every connected company. One failing account is logged and
// reported at the end without blocking the rest.
func (j *accountSyncJob) Run(ctx context.Context) error {
	var (
		after          uuid.UUID
		synced, failed int
		errs           error
	)
	for {
		page, err := j.companies.ListConnected(ctx, after, j.pageSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list connected companies: %w", err))
		}
		for _, company := range page {
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			// skip the cache so the processor is actually consulted
			j.gateway.InvalidateAccountStatus(ctx, *company.StripeAccountID)
			if _, err := j.gateway.SyncAccountStatus(ctx, company.ID); err != nil {
				failed++
				j.logg.WarnErr(j.logg.WithFields(ctx, map[string]any{
					"company_id":        company.ID.String(),
					"stripe_account_id": *company.StripeAccountID,
				}), "account status sync failed", err)
				errs = multierr.Append(errs, fmt.Errorf("company %s: %w", company.ID, err))
				continue
			}
			synced++
		}
		if len(page) < j.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"synced": synced,
		"failed": failed,
	}), "account status sync complete")
	return errs
}
