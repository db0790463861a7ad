package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
)

const (
	kakaoAuthURL = "https://kauth.kakao.com"
	kakaoAPIURL  = "https://kapi.kakao.com"
)

type KakaoConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// AdminKey lets Unlink work after the stored user token has expired.
	AdminKey string
	AuthURL  string
	APIURL   string
	Timeout  time.Duration
}

// KakaoProvider supports both the authorization-code flow and the native SDK
// flow where the app already holds a Kakao access token.
type KakaoProvider struct {
	cfg        KakaoConfig
	httpClient *http.Client
}

func NewKakaoProvider(cfg KakaoConfig) *KakaoProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = kakaoAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = kakaoAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &KakaoProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *KakaoProvider) Name() models.SocialProvider { return models.ProviderKakao }

type kakaoTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type kakaoUserResponse struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Profile         struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func (p *KakaoProvider) Verify(ctx context.Context, cred Credential) (*ExternalProfile, error) {
	accessToken := cred.AccessToken
	var refreshToken string

	if cred.AuthorizationCode != "" {
		token, err := p.exchangeCode(ctx, cred)
		if err != nil {
			return nil, err
		}
		accessToken = token.AccessToken
		refreshToken = token.RefreshToken
	}
	if accessToken == "" {
		return nil, errors.New("kakao: authorization code or access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIURL+"/v2/user/me", nil)
	if err != nil {
		return nil, fmt.Errorf("kakao: failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var user kakaoUserResponse
	if err := doJSON(p.httpClient, req, &user); err != nil {
		return nil, fmt.Errorf("kakao: profile: %w", err)
	}
	if user.ID == 0 {
		return nil, errors.New("kakao: profile response has no id")
	}

	// An unverified address could belong to someone else.
	var email string
	if user.KakaoAccount.IsEmailVerified {
		email = user.KakaoAccount.Email
	}
	return &ExternalProfile{
		ExternalID:   strconv.FormatInt(user.ID, 10),
		Email:        email,
		Nickname:     user.KakaoAccount.Profile.Nickname,
		AvatarURL:    user.KakaoAccount.Profile.ProfileImageURL,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (p *KakaoProvider) exchangeCode(ctx context.Context, cred Credential) (*kakaoTokenResponse, error) {
	redirectURI := cred.RedirectURI
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {p.cfg.ClientID},
		"redirect_uri": {redirectURI},
		"code":         {cred.AuthorizationCode},
	}
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.AuthURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("kakao: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	var token kakaoTokenResponse
	if err := doJSON(p.httpClient, req, &token); err != nil {
		return nil, fmt.Errorf("kakao: code exchange: %w", err)
	}
	if token.Error != "" {
		return nil, fmt.Errorf("kakao: code exchange: %s - %s", token.Error, token.ErrorDescription)
	}
	if token.AccessToken == "" {
		return nil, errors.New("kakao: code exchange returned no access token")
	}
	return &token, nil
}

func (p *KakaoProvider) Unlink(ctx context.Context, user *models.User) error {
	var (
		req *http.Request
		err error
	)
	switch {
	case p.cfg.AdminKey != "" && user.SocialID != nil:
		form := url.Values{
			"target_id_type": {"user_id"},
			"target_id":      {*user.SocialID},
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL+"/v1/user/unlink", strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("kakao: failed to create unlink request: %w", err)
		}
		req.Header.Set("Authorization", "KakaoAK "+p.cfg.AdminKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	case user.SocialAccessToken != nil:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL+"/v1/user/unlink", nil)
		if err != nil {
			return fmt.Errorf("kakao: failed to create unlink request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+*user.SocialAccessToken)
	default:
		return errors.New("kakao: no credential available for unlink")
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := doJSON(p.httpClient, req, &out); err != nil {
		return fmt.Errorf("kakao: unlink: %w", err)
	}
	return nil
}

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
