package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	v := NewStatic(map[string]string{"tok-a": "alice", "tok-b": "bob"})

	ident, err := v.Verify(context.Background(), "tok-b")
	require.NoError(t, err)
	assert.Equal(t, "bob", ident.UserID)

	_, err = v.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = v.Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyCredential)
}

func TestJWTValid(t *testing.T) {
	v, err := NewJWT(JWTConfig{Secret: "s3cret", Issuer: "roomhub"})
	require.NoError(t, err)

	token, err := Sign("s3cret", "alice", "roomhub", time.Minute)
	require.NoError(t, err)

	ident, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", ident.UserID)
	assert.Equal(t, "roomhub", ident.Claims["iss"])

	ident, err = v.Verify(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "alice", ident.UserID)
}

func TestJWTFallsBackToSubject(t *testing.T) {
	v, err := NewJWT(JWTConfig{Secret: "s3cret"})
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "carol",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	ident, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "carol", ident.UserID)
}

func TestJWTRejects(t *testing.T) {
	v, err := NewJWT(JWTConfig{Secret: "s3cret", Issuer: "roomhub"})
	require.NoError(t, err)

	wrongSecret, err := Sign("other", "alice", "roomhub", time.Minute)
	require.NoError(t, err)
	expired, err := Sign("s3cret", "alice", "roomhub", -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Sign("s3cret", "alice", "elsewhere", time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "alice"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noUser, err := Sign("s3cret", "", "roomhub", time.Minute)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": wrongSecret,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
		"no user":      noUser,
		"garbage":      "not.a.jwt",
		"empty":        "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	_, err := NewJWT(JWTConfig{})
	assert.Error(t, err)
}
