package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/repository"
	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

// Credential is whatever the client obtained from the provider SDK. Which
// fields are required depends on the provider.
type Credential struct {
	AuthorizationCode string
	AccessToken       string
	IdentityToken     string
	RedirectURI       string
	// Apple only returns the user's name on first consent; the client
	// forwards it here. Display only, never used to identify the user.
	Nickname string
}

// ExternalProfile is a provider-verified identity.
type ExternalProfile struct {
	ExternalID   string
	Email        string
	Nickname     string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

// IdentityProvider verifies credentials against one external provider.
type IdentityProvider interface {
	Name() models.SocialProvider
	Verify(ctx context.Context, cred Credential) (*ExternalProfile, error)
	// Unlink revokes the app's grant on the provider side.
	Unlink(ctx context.Context, user *models.User) error
}

// IDSource generates identifiers for new accounts.
type IDSource interface {
	UserID() int64
	InviteCode() string
}

// FederationResolver maps a provider identity to a local user, creating the
// user on first login, and opens a session for it.
type FederationResolver struct {
	users           repository.UserRepository
	tokens          *TokenIssuer
	vault           *RefreshVault
	ids             IDSource
	providers       map[models.SocialProvider]IdentityProvider
	defaultNickname string
	timeout         time.Duration
}

func NewFederationResolver(
	users repository.UserRepository,
	tokens *TokenIssuer,
	vault *RefreshVault,
	ids IDSource,
	defaultNickname string,
	timeout time.Duration,
	providers ...IdentityProvider,
) *FederationResolver {
	r := &FederationResolver{
		users:           users,
		tokens:          tokens,
		vault:           vault,
		ids:             ids,
		providers:       make(map[models.SocialProvider]IdentityProvider, len(providers)),
		defaultNickname: defaultNickname,
		timeout:         timeout,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *FederationResolver) Provider(name models.SocialProvider) (IdentityProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *FederationResolver) Resolve(ctx context.Context, provider models.SocialProvider, cred Credential) (*TokenPair, error) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	profile, err := r.verify(ctx, p, cred)
	if err != nil {
		metrics.IncLogin(string(provider), "failure")
		metrics.IncFederationFailure(string(provider))
		slog.Error("social login verification failed", "provider", provider, "error", err)
		sentry.CaptureException(err)
		return nil, federationError(string(provider), err)
	}

	pair, err := r.openSession(ctx, provider, profile)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Two first logins for the same subject raced; the loser sees the
		// winner's row on the second pass.
		pair, err = r.openSession(ctx, provider, profile)
	}
	if err != nil {
		metrics.IncLogin(string(provider), "failure")
		var tagged *Error
		if errors.As(err, &tagged) {
			return nil, err
		}
		return nil, persistenceError("resolve "+string(provider)+" user", err)
	}

	metrics.IncLogin(string(provider), "success")
	return pair, nil
}

func (r *FederationResolver) verify(ctx context.Context, p IdentityProvider, cred Credential) (*ExternalProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	profile, err := p.Verify(ctx, cred)
	if err != nil {
		return nil, err
	}
	if profile.ExternalID == "" {
		return nil, errors.New("provider returned an empty subject id")
	}
	return profile, nil
}

func (r *FederationResolver) openSession(ctx context.Context, provider models.SocialProvider, profile *ExternalProfile) (*TokenPair, error) {
	var pair TokenPair
	err := r.users.Transaction(ctx, func(tx repository.UserRepository) error {
		user, err := tx.FindBySocial(ctx, provider, profile.ExternalID)
		switch {
		case err == nil:
			// Profile fields are first-write-wins; only provider tokens move.
			if fields := providerTokenFields(profile); len(fields) > 0 {
				if err := tx.Update(ctx, user.ID, fields); err != nil {
					return err
				}
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			user, err = r.createUser(ctx, tx, provider, profile)
			if err != nil {
				return err
			}
		default:
			return err
		}

		pair, err = r.tokens.Issue(user.ID)
		if err != nil {
			return err
		}
		return r.vault.WithRepository(tx).Store(ctx, user.ID, pair.RefreshToken)
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *FederationResolver) createUser(ctx context.Context, tx repository.UserRepository, provider models.SocialProvider, profile *ExternalProfile) (*models.User, error) {
	socialID := profile.ExternalID
	user := &models.User{
		ID:             r.ids.UserID(),
		SocialProvider: provider,
		SocialID:       &socialID,
		InviteCode:     r.ids.InviteCode(),
	}

	// Email is best effort: providers may omit it, and an address already
	// held by another account is left off instead of failing the login.
	if profile.Email != "" {
		if _, err := tx.FindByEmail(ctx, profile.Email); errors.Is(err, gorm.ErrRecordNotFound) {
			email := profile.Email
			user.Email = &email
		} else if err != nil {
			return nil, err
		}
	}

	nickname := profile.Nickname
	if nickname == "" {
		nickname = r.defaultNickname
	}
	user.Nickname = &nickname
	if profile.AvatarURL != "" {
		avatar := profile.AvatarURL
		user.ProfileImageURL = &avatar
	}
	if profile.AccessToken != "" {
		token := profile.AccessToken
		user.SocialAccessToken = &token
	}
	if profile.RefreshToken != "" {
		token := profile.RefreshToken
		user.SocialRefreshToken = &token
	}

	if err := tx.Create(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("social account created", "provider", provider, "user_id", user.ID)
	return user, nil
}

func providerTokenFields(profile *ExternalProfile) map[string]interface{} {
	fields := make(map[string]interface{}, 2)
	if profile.AccessToken != "" {
		fields["social_access_token"] = profile.AccessToken
	}
	if profile.RefreshToken != "" {
		fields["social_refresh_token"] = profile.RefreshToken
	}
	return fields
}
