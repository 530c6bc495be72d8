package internal

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/errors"
)

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyToken(t *testing.T) {
	userId := uuid.New()
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    constants.APP_USER_SERVICE,
		Subject:   userId.String(),
		Audience:  jwt.ClaimStrings{constants.AUDIENCE_USER},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	tests := []struct {
		name        string
		token       string
		expectedErr error
	}{
		{
			name:  "given valid token should return parsed token",
			token: signToken(t, "secret", valid),
		},
		{
			name:        "given token signed with other secret should return invalid token",
			token:       signToken(t, "other", valid),
			expectedErr: errors.ErrTokenInvalid,
		},
		{
			name: "given expired token should return invalid token",
			token: signToken(t, "secret", jwt.RegisteredClaims{
				Issuer:    constants.APP_USER_SERVICE,
				Subject:   userId.String(),
				Audience:  jwt.ClaimStrings{constants.AUDIENCE_USER},
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			}),
			expectedErr: errors.ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := VerifyToken(context.Background(), tt.token, "secret")
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)

			c := AttachJwtToken(context.Background(), token)
			actual, err := UserIdFromJwtToken(c)
			require.NoError(t, err)
			assert.Equal(t, userId, actual)
		})
	}
}

func TestUserIdFromJwtTokenWithoutToken(t *testing.T) {
	_, err := UserIdFromJwtToken(context.Background())
	assert.ErrorIs(t, err, errors.ErrMissingJwtToken)
}
