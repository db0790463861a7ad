package models

import (
	"time"

	"gorm.io/gorm"
)

// SocialProvider identifies how an account authenticates.
type SocialProvider string

const (
	ProviderEmail SocialProvider = "email"
	ProviderKakao SocialProvider = "kakao"
	ProviderApple SocialProvider = "apple"
	ProviderNaver SocialProvider = "naver"
)

func (p SocialProvider) Valid() bool {
	switch p {
	case ProviderEmail, ProviderKakao, ProviderApple, ProviderNaver:
		return true
	}
	return false
}

// User is the identity row. SocialID is set for OAuth accounts only and
// PasswordHash for email accounts only. HashedRefreshToken is nil when the
// account has no active session.
type User struct {
	ID                 int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SocialProvider     SocialProvider `gorm:"size:16;not null;default:'email';uniqueIndex:idx_users_social" json:"socialProvider"`
	SocialID           *string        `gorm:"size:255;uniqueIndex:idx_users_social" json:"-"`
	Email              *string        `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	PasswordHash       *string        `gorm:"size:255" json:"-"`
	Nickname           *string        `gorm:"size:50" json:"nickname,omitempty"`
	ProfileImageURL    *string        `gorm:"size:500" json:"profileImageUrl,omitempty"`
	InviteCode         string         `gorm:"size:32;not null;uniqueIndex" json:"inviteCode"`
	HashedRefreshToken *string        `gorm:"size:255" json:"-"`
	SocialAccessToken  *string        `gorm:"type:text" json:"-"`
	SocialRefreshToken *string        `gorm:"type:text" json:"-"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsSocial() bool {
	return u.SocialProvider != ProviderEmail
}
