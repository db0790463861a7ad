package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	UserID    int64  `json:"userId"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what session operations hand back to clients. RefreshToken is
// empty when a refresh call did not rotate.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer signs and verifies HS256 tokens. It has no side effects;
// persisting the refresh token is the caller's job.
type TokenIssuer struct {
	secret          []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration
	now             func() time.Time
}

func NewTokenIssuer(secret string, accessLifetime, refreshLifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:          []byte(secret),
		accessLifetime:  accessLifetime,
		refreshLifetime: refreshLifetime,
		now:             time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

func (t *TokenIssuer) RefreshLifetime() time.Duration { return t.refreshLifetime }

func (t *TokenIssuer) Issue(userID int64) (TokenPair, error) {
	access, err := t.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) IssueAccess(userID int64) (string, error) {
	return t.sign(userID, TokenTypeAccess, t.accessLifetime)
}

func (t *TokenIssuer) IssueRefresh(userID int64) (string, error) {
	return t.sign(userID, TokenTypeRefresh, t.refreshLifetime)
}

func (t *TokenIssuer) sign(userID int64, tokenType string, lifetime time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	metrics.IncTokenIssued(tokenType)
	return signed, nil
}

// VerifyAccess returns the claims of a valid, unexpired access token.
func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return t.parse(token, TokenTypeAccess)
}

// DecodeRefresh checks signature and expiry of a refresh token and returns
// the claimed user and validity window. Whether the token is still the
// user's current one is decided by the RefreshVault.
func (t *TokenIssuer) DecodeRefresh(token string) (*Claims, error) {
	return t.parse(token, TokenTypeRefresh)
}

func (t *TokenIssuer) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.TokenType != tokenType || claims.UserID == 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
