package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
)

const (
	naverAuthURL = "https://nid.naver.com"
	naverAPIURL  = "https://openapi.naver.com"
)

type NaverConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	APIURL       string
	Timeout      time.Duration
}

// NaverProvider verifies an access token obtained by the Naver login SDK.
type NaverProvider struct {
	cfg        NaverConfig
	httpClient *http.Client
}

func NewNaverProvider(cfg NaverConfig) *NaverProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = naverAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = naverAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NaverProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *NaverProvider) Name() models.SocialProvider { return models.ProviderNaver }

type naverProfileResponse struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"response"`
}

func (p *NaverProvider) Verify(ctx context.Context, cred Credential) (*ExternalProfile, error) {
	if cred.AccessToken == "" {
		return nil, errors.New("naver: access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIURL+"/v1/nid/me", nil)
	if err != nil {
		return nil, fmt.Errorf("naver: failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	var profile naverProfileResponse
	if err := doJSON(p.httpClient, req, &profile); err != nil {
		return nil, fmt.Errorf("naver: profile: %w", err)
	}
	if profile.ResultCode != "00" {
		return nil, fmt.Errorf("naver: profile: %s %s", profile.ResultCode, profile.Message)
	}
	if profile.Response.ID == "" {
		return nil, errors.New("naver: profile response has no id")
	}

	return &ExternalProfile{
		ExternalID:  profile.Response.ID,
		Email:       profile.Response.Email,
		Nickname:    profile.Response.Nickname,
		AvatarURL:   profile.Response.ProfileImage,
		AccessToken: cred.AccessToken,
	}, nil
}

func (p *NaverProvider) Unlink(ctx context.Context, user *models.User) error {
	if user.SocialAccessToken == nil {
		return errors.New("naver: no access token stored for unlink")
	}
	form := url.Values{
		"grant_type":       {"delete"},
		"client_id":        {p.cfg.ClientID},
		"client_secret":    {p.cfg.ClientSecret},
		"access_token":     {*user.SocialAccessToken},
		"service_provider": {"NAVER"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.AuthURL+"/oauth2.0/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("naver: failed to create unlink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		Result           string `json:"result"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := doJSON(p.httpClient, req, &out); err != nil {
		return fmt.Errorf("naver: unlink: %w", err)
	}
	if out.Result != "success" {
		return fmt.Errorf("naver: unlink: %s %s", out.Error, out.ErrorDescription)
	}
	return nil
}
