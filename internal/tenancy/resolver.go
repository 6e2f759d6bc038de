package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

// Principal is the authenticated caller as seen by tenant resolution.
type Principal struct {
	UserID    uuid.UUID
	CompanyID *uuid.UUID
	Role      string
}

// ErrNoMatch tells the chain to try the next strategy.
var ErrNoMatch = errors.New("strategy did not resolve a company")

// Strategy maps a principal to a company id or returns ErrNoMatch.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, principal Principal) (uuid.UUID, error)
}

// Resolver runs strategies in order; the first success wins.
type Resolver struct {
	strategies []Strategy
	logg       *logger.Logger
}

func NewResolver(logg *logger.Logger, strategies ...Strategy) (*Resolver, error) {
	if len(strategies) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "at least one tenant strategy required")
	}
	for _, s := range strategies {
		if s == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "nil tenant strategy")
		}
	}
	return &Resolver{strategies: strategies, logg: logg}, nil
}

func (r *Resolver) ResolveCompanyID(ctx context.Context, principal *Principal) (uuid.UUID, error) {
	if principal == nil || principal.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no authenticated principal")
	}
	for _, strategy := range r.strategies {
		companyID, err := strategy.Resolve(ctx, *principal)
		if err == nil && companyID != uuid.Nil {
			if r.logg != nil {
				r.logg.Debug(r.logg.WithField(ctx, "tenant_strategy", strategy.Name()), "tenant resolved")
			}
			return companyID, nil
		}
		if err != nil && !errors.Is(err, ErrNoMatch) {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve tenant via "+strategy.Name())
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeTenantResolution, "no company associated with principal")
}
