package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleIssuer  = "https://appleid.apple.com"
	appleBaseURL = "https://appleid.apple.com"
)

var errAppleClientSecretUnavailable = errors.New("apple: client secret signing key not configured")

type AppleConfig struct {
	// ClientIDs are the accepted identity-token audiences (bundle id and
	// services id). The first one is used for code exchange and revoke.
	ClientIDs  []string
	TeamID     string
	KeyID      string
	PrivateKey string
	BaseURL    string
	JWKSURL    string
	Timeout    time.Duration
}

// AppleProvider verifies Sign in with Apple identity tokens.
type AppleProvider struct {
	cfg        AppleConfig
	jwks       *AppleJWKSClient
	signingKey *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

func NewAppleProvider(cfg AppleConfig) (*AppleProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = appleBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	p := &AppleProvider{
		cfg:        cfg,
		jwks:       NewAppleJWKSClient(cfg.JWKSURL, cfg.Timeout),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	if cfg.PrivateKey != "" {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("apple: invalid private key: %w", err)
		}
		p.signingKey = key
	}
	return p, nil
}

func (p *AppleProvider) Name() models.SocialProvider { return models.ProviderApple }

type appleIdentityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type appleTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *AppleProvider) Verify(ctx context.Context, cred Credential) (*ExternalProfile, error) {
	if cred.IdentityToken == "" {
		return nil, errors.New("apple: identity token is required")
	}
	if len(p.cfg.ClientIDs) == 0 {
		return nil, errors.New("apple: no client ids configured")
	}

	claims := &appleIdentityClaims{}
	_, err := jwt.ParseWithClaims(cred.IdentityToken, claims, p.jwks.Keyfunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(appleIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("apple: identity token: %w", err)
	}
	if !p.audienceAllowed(claims.Audience) {
		return nil, fmt.Errorf("apple: unexpected audience %v", claims.Audience)
	}
	if claims.Subject == "" {
		return nil, errors.New("apple: identity token has no subject")
	}

	profile := &ExternalProfile{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Nickname:   cred.Nickname,
	}

	// The Apple refresh token is only needed to revoke on withdrawal, so a
	// failed exchange does not fail the login.
	if cred.AuthorizationCode != "" && p.signingKey != nil {
		token, err := p.exchangeCode(ctx, cred.AuthorizationCode)
		if err != nil {
			slog.Warn("apple authorization code exchange failed", "provider", models.ProviderApple, "error", err)
		} else {
			profile.AccessToken = token.AccessToken
			profile.RefreshToken = token.RefreshToken
		}
	}
	return profile, nil
}

func (p *AppleProvider) audienceAllowed(aud jwt.ClaimStrings) bool {
	for _, got := range aud {
		for _, want := range p.cfg.ClientIDs {
			if got == want {
				return true
			}
		}
	}
	return false
}

func (p *AppleProvider) exchangeCode(ctx context.Context, code string) (*appleTokenResponse, error) {
	secret, err := p.clientSecret()
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"client_id":     {p.cfg.ClientIDs[0]},
		"client_secret": {secret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("apple: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token appleTokenResponse
	if err := doJSON(p.httpClient, req, &token); err != nil {
		return nil, fmt.Errorf("apple: code exchange: %w", err)
	}
	if token.Error != "" {
		return nil, fmt.Errorf("apple: code exchange: %s %s", token.Error, token.ErrorDescription)
	}
	return &token, nil
}

func (p *AppleProvider) Unlink(ctx context.Context, user *models.User) error {
	var token, hint string
	switch {
	case user.SocialRefreshToken != nil:
		token, hint = *user.SocialRefreshToken, "refresh_token"
	case user.SocialAccessToken != nil:
		token, hint = *user.SocialAccessToken, "access_token"
	default:
		return errors.New("apple: no token stored for revoke")
	}

	secret, err := p.clientSecret()
	if err != nil {
		return err
	}
	form := url.Values{
		"client_id":       {p.cfg.ClientIDs[0]},
		"client_secret":   {secret},
		"token":           {token},
		"token_type_hint": {hint},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/auth/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("apple: failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := doJSON(p.httpClient, req, nil); err != nil {
		return fmt.Errorf("apple: revoke: %w", err)
	}
	return nil
}

// clientSecret builds the short-lived ES256 JWT Apple expects in place of a
// static client secret.
func (p *AppleProvider) clientSecret() (string, error) {
	if p.signingKey == nil || len(p.cfg.ClientIDs) == 0 {
		return "", errAppleClientSecretUnavailable
	}
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    p.cfg.TeamID,
		Subject:   p.cfg.ClientIDs[0],
		Audience:  jwt.ClaimStrings{appleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	token.Header["kid"] = p.cfg.KeyID
	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("apple: failed to sign client secret: %w", err)
	}
	return signed, nil
}
