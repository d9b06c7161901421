package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestManager(t *testing.T, opts ...TokenOption) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenConfig{
		Secret:     []byte("test-secret"),
		Algorithm:  "HS256",
		DefaultTTL: 30 * time.Minute,
	}, opts...)
	require.NoError(t, err)
	return m
}

func clockAt(ts *time.Time) TokenOption {
	return WithClock(func() time.Time { return *ts })
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Algorithm: "HS256"})
	assert.Error(t, err)

	_, err = NewTokenManager(TokenConfig{Secret: []byte("s")})
	assert.Error(t, err)

	_, err = NewTokenManager(TokenConfig{Secret: []byte("s"), Algorithm: "RS256"})
	assert.Error(t, err)

	m, err := NewTokenManager(TokenConfig{Secret: []byte("s"), Algorithm: "hs512"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, m.DefaultTTL())
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, 7, claims.UserID)
	require.NotNil(t, claims.ExpiresAt)
}

func TestIssueUsesDefaultTTL(t *testing.T) {
	now := fixedNow
	m := newTestManager(t, clockAt(&now))

	token, err := m.Issue("alice", 7)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(30*time.Minute).Equal(claims.ExpiresAt.Time))

	now = fixedNow.Add(31 * time.Minute)
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestZeroTTLIsRejected(t *testing.T) {
	now := fixedNow
	m := newTestManager(t, clockAt(&now))

	token, err := m.IssueWithTTL("alice", 7, 0)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	past, err := m.IssueWithTTL("alice", 7, -time.Minute)
	require.NoError(t, err)
	_, err = m.Verify(past)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	m := newTestManager(t)
	token, err := m.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])

	for _, idx := range []int{0, len(sig) / 2, len(sig) - 2} {
		tampered := append([]byte(nil), sig...)
		if tampered[idx] == 'A' {
			tampered[idx] = 'B'
		} else {
			tampered[idx] = 'A'
		}
		forged := parts[0] + "." + parts[1] + "." + string(tampered)

		_, err := m.Verify(forged)
		assert.ErrorIs(t, err, ErrInvalidToken, "index %d", idx)
	}
}

func TestTruncatedTokenIsRejected(t *testing.T) {
	m := newTestManager(t)
	token, err := m.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	_, err = m.Verify(token[:len(token)-1])
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTamperedPayloadIsRejected(t *testing.T) {
	m := newTestManager(t)
	token, err := m.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	other, err := m.IssueWithTTL("mallory", 8, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = m.Verify(forged)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestWrongSecretIsRejected(t *testing.T) {
	m := newTestManager(t)
	other, err := NewTokenManager(TokenConfig{Secret: []byte("other"), Algorithm: "HS256"})
	require.NoError(t, err)

	token, err := other.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestAlgorithmMismatchIsRejected(t *testing.T) {
	m := newTestManager(t)
	other, err := NewTokenManager(TokenConfig{Secret: []byte("test-secret"), Algorithm: "HS512"})
	require.NoError(t, err)

	token, err := other.IssueWithTTL("alice", 7, time.Hour)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestMalformedTokenIsRejected(t *testing.T) {
	m := newTestManager(t)

	for _, raw := range []string{"", "garbage", "a.b.c", "a.b"} {
		_, err := m.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", raw)
	}
}

func TestMissingClaimsAreRejected(t *testing.T) {
	m := newTestManager(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	sign := func(claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		return s
	}

	noSubject := sign(Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}})
	_, err := m.Verify(noSubject)
	assert.ErrorIs(t, err, ErrTokenClaims)

	noID := sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp}})
	_, err = m.Verify(noID)
	assert.ErrorIs(t, err, ErrTokenClaims)

	noExpiry := sign(Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	_, err = m.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrTokenClaims)
}
