package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kycgate/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "kycgate")

func TestGenerateAndValidate(t *testing.T) {
	token, err := jwtService.GenerateServiceToken("onboarding-web", "service", time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "onboarding-web", claims.Subject)
	assert.Equal(t, "service", claims.Role)
	assert.NotEmpty(t, claims.TokenID)
}

func TestValidateTokenRejects(t *testing.T) {
	expired, err := jwtService.GenerateServiceToken("onboarding-web", "service", -time.Hour)
	require.NoError(t, err)
	otherAudience, err := NewJWTService("test-signing-key", "test-issuer", "elsewhere").
		GenerateServiceToken("onboarding-web", "service", time.Hour)
	require.NoError(t, err)
	otherKey, err := NewJWTService("another-key", "test-issuer", "kycgate").
		GenerateServiceToken("onboarding-web", "service", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwtService.GenerateServiceToken("", "service", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		token string
		msg   string
	}{
		"garbage":        {"invalid-token-string", "invalid token"},
		"expired":        {expired, "token has expired"},
		"wrong audience": {otherAudience, "invalid token"},
		"wrong key":      {otherKey, "invalid token"},
		"no subject":     {noSubject, "token has no subject"},
		"alg none":       {none, "invalid token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := jwtService.ValidateToken(tc.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			de, ok := dErrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.msg, de.Message)
		})
	}
}
