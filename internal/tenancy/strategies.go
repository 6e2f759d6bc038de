package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

// ClaimsStrategy trusts the company id stamped into the access token.
type ClaimsStrategy struct{}

func (ClaimsStrategy) Name() string { return "claims" }

func (ClaimsStrategy) Resolve(_ context.Context, principal Principal) (uuid.UUID, error) {
	if principal.CompanyID == nil || *principal.CompanyID == uuid.Nil {
		return uuid.Nil, ErrNoMatch
	}
	return *principal.CompanyID, nil
}

// ProfileStrategy looks the user up in the profiles table.
type ProfileStrategy struct {
	db *gorm.DB
}

func NewProfileStrategy(db *gorm.DB) *ProfileStrategy {
	return &ProfileStrategy{db: db}
}

func (*ProfileStrategy) Name() string { return "profile" }

func (s *ProfileStrategy) Resolve(ctx context.Context, principal Principal) (uuid.UUID, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", principal.UserID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrNoMatch
	}
	if err != nil {
		return uuid.Nil, err
	}
	return profile.CompanyID, nil
}
