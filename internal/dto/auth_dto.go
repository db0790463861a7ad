package dto

import "time"

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthRequest carries what the client SDK obtained from the provider.
// Kakao accepts either authorizationCode or accessToken, Naver needs
// accessToken and Apple needs identityToken.
type OAuthRequest struct {
	AuthorizationCode string `json:"authorizationCode,omitempty"`
	AccessToken       string `json:"accessToken,omitempty"`
	IdentityToken     string `json:"identityToken,omitempty"`
	RedirectURI       string `json:"redirectUri,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
}

type SignUpResponse struct {
	ID         int64  `json:"id,string"`
	Email      string `json:"email"`
	InviteCode string `json:"inviteCode"`
}

// TokenResponse omits refreshToken when a refresh did not rotate it.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type UserResponse struct {
	ID              int64     `json:"id,string"`
	Provider        string    `json:"provider"`
	Email           string    `json:"email,omitempty"`
	Nickname        string    `json:"nickname,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	InviteCode      string    `json:"inviteCode"`
	CreatedAt       time.Time `json:"createdAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
