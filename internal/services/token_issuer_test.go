package services

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerIssueAndVerify(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, 15*time.Minute, 14*24*time.Hour).WithClock(clock.Now)

	pair, err := issuer.Issue(42)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	access, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), access.UserID)
	assert.Equal(t, "42", access.Subject)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.Equal(t, clock.Now().Add(15*time.Minute).Unix(), access.ExpiresAt.Unix())

	refresh, err := issuer.DecodeRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), refresh.UserID)
	assert.Equal(t, clock.Now().Unix(), refresh.IssuedAt.Unix())
	assert.Equal(t, clock.Now().Add(14*24*time.Hour).Unix(), refresh.ExpiresAt.Unix())
}

func TestTokenIssuerTokensAreUniqueWithinOneSecond(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour).WithClock(newFakeClock().Now)

	a, err := issuer.IssueRefresh(7)
	require.NoError(t, err)
	b, err := issuer.IssueRefresh(7)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenIssuerRejectsWrongTokenType(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour)
	pair, err := issuer.Issue(1)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.DecodeRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour).WithClock(clock.Now)
	pair, err := issuer.Issue(1)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = issuer.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrKindInvalidToken)

	_, err = issuer.DecodeRefresh(pair.RefreshToken)
	assert.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = issuer.DecodeRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuerRejectsForeignSignatureAndGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour)
	other := NewTokenIssuer("another-secret-0123456789abcdefghijkl", time.Minute, time.Hour)

	foreign, err := other.IssueAccess(1)
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, raw := range []string{"", "not-a-jwt", "a.b.c", strings.Repeat("x", 4096)} {
		_, err := issuer.DecodeRefresh(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestTokenIssuerRejectsNoneAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour)
	claims := Claims{
		UserID:    1,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func FuzzDecodeRefreshRobustness(f *testing.F) {
	issuer := NewTokenIssuer(testSecret, time.Minute, time.Hour)
	valid, _ := issuer.IssueRefresh(42)

	f.Add(valid)
	f.Add("")
	f.Add("header.payload.signature")
	f.Add(strings.Repeat("b", 8192))

	f.Fuzz(func(t *testing.T, raw string) {
		claims, err := issuer.DecodeRefresh(raw)
		if err == nil {
			if claims == nil || claims.TokenType != TokenTypeRefresh || claims.UserID == 0 {
				t.Fatalf("accepted token with unexpected claims: %+v", claims)
			}
		}
	})
}
