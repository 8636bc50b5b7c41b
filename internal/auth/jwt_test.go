package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "brewnet", time.Hour)

	token, err := m.GenerateAccessToken("alice", "Alice")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "alice", claims.Subject)
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", "brewnet", -time.Minute)

	token, err := m.GenerateAccessToken("alice", "Alice")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRejectsForeignTokens(t *testing.T) {
	m := NewJWTManager("secret", "brewnet", time.Hour)

	other, err := NewJWTManager("other-secret", "brewnet", time.Hour).GenerateAccessToken("alice", "")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTManager("secret", "someone-else", time.Hour).GenerateAccessToken("alice", "")
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsNonAccessTokens(t *testing.T) {
	m := NewJWTManager("secret", "brewnet", time.Hour)

	claims := &Claims{
		UserID:    "alice",
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "brewnet",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
