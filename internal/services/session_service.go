package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/repository"
	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

// SessionService is the entry point for sign-up, sign-in, refresh, social
// login, logout and withdrawal. A user has at most one live refresh token.
type SessionService struct {
	users         repository.UserRepository
	hasher        PasswordHasher
	tokens        *TokenIssuer
	vault         *RefreshVault
	federation    *FederationResolver
	ids           IDSource
	unlinkTimeout time.Duration
	now           func() time.Time

	// dummyHash is compared against when the email is unknown so both
	// sign-in failures cost one hash verification.
	dummyHash string
}

func NewSessionService(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	vault *RefreshVault,
	federation *FederationResolver,
	ids IDSource,
	unlinkTimeout time.Duration,
) *SessionService {
	dummy, err := hasher.Hash("pinplace-placeholder-password")
	if err != nil {
		slog.Warn("failed to prepare placeholder password hash", "error", err)
	}
	return &SessionService{
		users:         users,
		hasher:        hasher,
		tokens:        tokens,
		vault:         vault,
		federation:    federation,
		ids:           ids,
		unlinkTimeout: unlinkTimeout,
		now:           time.Now,
		dummyHash:     dummy,
	}
}

// WithClock replaces the time source used for the rotation decision.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// SignUp creates an email account. It does not open a session.
func (s *SessionService) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistenceError("lookup email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.createEmailUser(ctx, email, hash)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Either the email was taken concurrently or the invite code collided.
		if _, lookupErr := s.users.FindByEmail(ctx, email); lookupErr == nil {
			return nil, ErrEmailTaken
		}
		user, err = s.createEmailUser(ctx, email, hash)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, persistenceError("create user", err)
	}

	slog.Info("email account created", "user_id", user.ID)
	return user, nil
}

func (s *SessionService) createEmailUser(ctx context.Context, email, hash string) (*models.User, error) {
	user := &models.User{
		ID:             s.ids.UserID(),
		SocialProvider: models.ProviderEmail,
		Email:          &email,
		PasswordHash:   &hash,
		InviteCode:     s.ids.InviteCode(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignIn checks email credentials and opens a new session, replacing any
// previous one. Unknown email and wrong password are indistinguishable.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, persistenceError("lookup email", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		metrics.IncLogin(string(models.ProviderEmail), "failure")
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == nil {
		s.hasher.Verify(password, s.dummyHash)
		metrics.IncLogin(string(models.ProviderEmail), "failure")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, *user.PasswordHash) {
		metrics.IncLogin(string(models.ProviderEmail), "failure")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Store(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}

	metrics.IncLogin(string(models.ProviderEmail), "success")
	return &pair, nil
}

// Refresh always returns a new access token. The refresh token is rotated
// only once less than half of its lifetime remains; otherwise
// TokenPair.RefreshToken is empty and the stored hash is untouched.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		metrics.IncRefresh("rejected")
		return nil, err
	}

	storedHash, err := s.vault.Check(ctx, claims.UserID, refreshToken)
	if err != nil {
		metrics.IncRefresh("rejected")
		return nil, err
	}

	access, err := s.tokens.IssueAccess(claims.UserID)
	if err != nil {
		return nil, err
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining >= s.tokens.RefreshLifetime()/2 {
		metrics.IncRefresh("kept")
		return &TokenPair{AccessToken: access}, nil
	}

	rotated, err := s.tokens.IssueRefresh(claims.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Replace(ctx, claims.UserID, storedHash, rotated); err != nil {
		metrics.IncRefresh("rejected")
		return nil, err
	}

	metrics.IncRefresh("rotated")
	return &TokenPair{AccessToken: access, RefreshToken: rotated}, nil
}

// OAuthLogin signs in (or up) through an external provider.
func (s *SessionService) OAuthLogin(ctx context.Context, provider models.SocialProvider, cred Credential) (*TokenPair, error) {
	return s.federation.Resolve(ctx, provider, cred)
}

// Logout drops the refresh token. Access tokens already handed out stay
// valid until they expire.
func (s *SessionService) Logout(ctx context.Context, userID int64) error {
	return s.vault.Clear(ctx, userID)
}

// Profile returns the account behind userID.
func (s *SessionService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, persistenceError("load user", err)
	}
	return user, nil
}

// Withdraw permanently deletes the account. Provider-side unlink is best
// effort and never blocks the deletion.
func (s *SessionService) Withdraw(ctx context.Context, userID int64) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if user.IsSocial() {
		s.unlink(ctx, user)
	}

	err = s.users.Transaction(ctx, func(tx repository.UserRepository) error {
		if err := s.vault.WithRepository(tx).Clear(ctx, user.ID); err != nil {
			return err
		}
		return tx.Delete(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		var tagged *Error
		if errors.As(err, &tagged) {
			return err
		}
		return persistenceError("delete user", err)
	}

	slog.Info("account withdrawn", "user_id", user.ID, "provider", user.SocialProvider)
	return nil
}

func (s *SessionService) unlink(ctx context.Context, user *models.User) {
	provider, ok := s.federation.Provider(user.SocialProvider)
	if !ok {
		slog.Warn("no provider configured for unlink", "provider", user.SocialProvider, "user_id", user.ID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.unlinkTimeout)
	defer cancel()

	if err := provider.Unlink(ctx, user); err != nil {
		slog.Warn("provider unlink failed", "provider", user.SocialProvider, "user_id", user.ID, "error", err)
		sentry.CaptureException(err)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
