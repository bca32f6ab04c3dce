package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postboard/internal/config"
)

func newTestService(now *time.Time) *Service {
	s := NewService(config.Tokens{
		Secret:     []byte("test-secret-test-secret-test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ActionTTL:  time.Hour,
	})
	return s.WithClock(func() time.Time { return *now })
}

func TestIssueAndVerify_Access(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(&now)

	tok, err := s.Issue("user-1", Access)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	assert.NotEmpty(t, tok.ID)
	assert.Equal(t, now.Add(900*time.Second), tok.ExpiresAt)

	got, err := s.Verify(tok.Value, Access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, tok.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, now, got.IssuedAt)
}

func TestIssue_RefreshLifetime(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(&now)

	tok, err := s.Issue("user-1", Refresh)
	require.NoError(t, err)
	assert.Equal(t, now.Add(604800*time.Second), tok.ExpiresAt)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(&now)

	tok, err := s.Issue("user-1", Access)
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = s.Verify(tok.Value, Access)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(&now)

	tok, err := s.Issue("user-1", Access)
	require.NoError(t, err)

	other := NewService(config.Tokens{Secret: []byte("another-secret"), AccessTTL: time.Minute})
	_, err = other.Verify(tok.Value, Access)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_WrongKind(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(&now)

	refresh, err := s.Issue("user-1", Refresh)
	require.NoError(t, err)

	_, err = s.Verify(refresh.Value, Access)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(&now)

	_, err := s.Verify("not.a.jwt", Access)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(&now)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Type: Access,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	require.NoError(t, err)

	_, err = s.Verify(raw, Access)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestIssueAfter_StrictlyLaterExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(&now)

	first, err := s.Issue("user-1", Refresh)
	require.NoError(t, err)

	// same second: plain issuance would produce an identical expiry
	second, err := s.IssueAfter("user-1", Refresh, first.ExpiresAt)
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))

	now = now.Add(time.Hour)
	third, err := s.IssueAfter("user-1", Refresh, second.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour), third.ExpiresAt)
}

func TestIssueBound_CarriesFingerprint(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(&now)

	tok, err := s.IssueBound("user-1", Reset, "fp-1")
	require.NoError(t, err)

	got, err := s.Verify(tok.Value, Reset)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got.Fingerprint)
}
