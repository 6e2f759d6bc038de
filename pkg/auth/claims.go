package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the access token body issued by the identity service.
// company_id is present once the user has picked an active company.
type Claims struct {
	UserID    uuid.UUID  `json:"user_id,omitempty"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Role      string     `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// User returns the caller id, preferring the explicit claim over sub.
func (c *Claims) User() (uuid.UUID, error) {
	if c.UserID != uuid.Nil {
		return c.UserID, nil
	}
	if c.Subject == "" {
		return uuid.Nil, errors.New("token carries no user")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, errors.New("token subject is not a user id")
	}
	return id, nil
}
