package auth

import (
	"testing"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager(testSecret, "upi-wallet", "wallet-api", time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, expires, err := m.Issue(id, "asha@upi")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokenRejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager("short", "iss", "aud", time.Hour)
	require.Error(t, err)
}

func TestTokenRejectsWrongAudience(t *testing.T) {
	issuer, err := NewTokenManager(testSecret, "upi-wallet", "other-api", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenManager(testSecret, "upi-wallet", "wallet-api", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue(uuid.New(), "x@upi")
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTokenRejectsExpired(t *testing.T) {
	m, err := NewTokenManager(testSecret, "upi-wallet", "wallet-api", time.Minute)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := m.Issue(uuid.New(), "x@upi")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTokenRejectsOtherSigningMethod(t *testing.T) {
	m, err := NewTokenManager(testSecret, "", "", time.Hour)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{AccountID: uuid.NewString()})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = m.Parse(signed)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	require.NoError(t, ComparePassword(hash, "correct horse"))
	require.ErrorIs(t, ComparePassword(hash, "wrong"), domain.ErrInvalidCredentials)
}
