package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "tillstock"}

func claimsFor(issuer string) Claims {
	companyID := uuid.New()
	return Claims{
		UserID:           uuid.New(),
		CompanyID:        &companyID,
		Role:             "staff",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}
}

func TestVerifyAcceptsSignedToken(t *testing.T) {
	claims := claimsFor(testCfg.Issuer)
	token, err := Sign(testCfg.Secret, claims, time.Minute)
	require.NoError(t, err)

	got, err := NewVerifier(testCfg).Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, got.UserID)
	require.Equal(t, *claims.CompanyID, *got.CompanyID)
	require.Equal(t, "staff", got.Role)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	userID := uuid.New()
	token, err := Sign(testCfg.Secret, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:  testCfg.Issuer,
		Subject: userID.String(),
	}}, time.Minute)
	require.NoError(t, err)

	got, err := NewVerifier(testCfg).Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
	require.Nil(t, got.CompanyID)
}

func TestVerifyRejects(t *testing.T) {
	signWith := func(method jwt.SigningMethod, secret string, c Claims) string {
		if c.ExpiresAt == nil {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Minute))
		}
		token, err := jwt.NewWithClaims(method, c).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	expired := claimsFor(testCfg.Issuer)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noUser := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer, Subject: "not-a-uuid"}}
	noExpiry, err := jwt.NewWithClaims(Method, claimsFor(testCfg.Issuer)).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret":   signWith(Method, "other", claimsFor(testCfg.Issuer)),
		"wrong issuer":   signWith(Method, testCfg.Secret, claimsFor("someone-else")),
		"wrong method":   signWith(jwt.SigningMethodHS512, testCfg.Secret, claimsFor(testCfg.Issuer)),
		"expired":        signWith(Method, testCfg.Secret, expired),
		"missing expiry": noExpiry,
		"bad subject":    signWith(Method, testCfg.Secret, noUser),
		"garbage":        "not-a-token",
	}
	verifier := NewVerifier(testCfg)
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(token)
			require.Error(t, err)
		})
	}
}

func TestVerifyLeewayCoversClockSkew(t *testing.T) {
	claims := claimsFor(testCfg.Issuer)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-5 * time.Second))
	token, err := Sign(testCfg.Secret, claims, 0)
	require.NoError(t, err)

	_, err = NewVerifier(testCfg).Verify(token)
	require.Error(t, err)

	lenient := testCfg
	lenient.Leeway = time.Minute
	_, err = NewVerifier(lenient).Verify(token)
	require.NoError(t, err)
}

func TestVerifyWithoutSecretOrToken(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{}).Verify("x")
	require.Error(t, err)

	_, err = NewVerifier(testCfg).Verify("")
	require.True(t, errors.Is(err, ErrMissingToken))
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer   abc "))
	require.Equal(t, "abc", BearerToken("abc"))
	require.Equal(t, "", BearerToken("  "))
}
