package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
)

// Method is the only algorithm accepted on access tokens.
var Method jwt.SigningMethod = jwt.SigningMethodHS256

var ErrMissingToken = errors.New("missing bearer token")

// Verifier checks HS256 access tokens against one secret and issuer.
// Issuing tokens is not this service's job.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{Method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns its claims once signature, issuer, expiry
// and user id all check out.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	userID, err := claims.User()
	if err != nil {
		return nil, err
	}
	claims.UserID = userID
	return claims, nil
}

// BearerToken pulls the token out of an Authorization header. A bare token
// without the scheme is accepted too.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// Sign is used by tests and local tooling to mint tokens the verifier accepts.
func Sign(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil && ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(Method, claims).SignedString([]byte(secret))
}
