package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/idgen"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/repository"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-0123456789abcdefghijklmnop"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

// testArgon2Params keeps hashing cheap in tests.
func testArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProvider is an IdentityProvider whose behaviour is set per test.
type stubProvider struct {
	name     models.SocialProvider
	verifyFn func(ctx context.Context, cred Credential) (*ExternalProfile, error)
	unlinkFn func(ctx context.Context, user *models.User) error

	mu       sync.Mutex
	unlinked []int64
}

func (s *stubProvider) Name() models.SocialProvider { return s.name }

func (s *stubProvider) Verify(ctx context.Context, cred Credential) (*ExternalProfile, error) {
	if s.verifyFn == nil {
		return nil, fmt.Errorf("verify not implemented")
	}
	return s.verifyFn(ctx, cred)
}

func (s *stubProvider) Unlink(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	s.unlinked = append(s.unlinked, user.ID)
	s.mu.Unlock()
	if s.unlinkFn == nil {
		return nil
	}
	return s.unlinkFn(ctx, user)
}

// profileByToken treats cred.AccessToken as "subject" or "subject#email",
// standing in for a provider that reports the email itself.
func profileByToken(_ context.Context, cred Credential) (*ExternalProfile, error) {
	subject, email, _ := strings.Cut(cred.AccessToken, "#")
	return &ExternalProfile{
		ExternalID:  subject,
		Nickname:    cred.Nickname,
		Email:       email,
		AccessToken: "provider-token-" + subject,
	}, nil
}

type fixture struct {
	db       *gorm.DB
	users    *repository.GormUserRepository
	clock    *fakeClock
	tokens   *TokenIssuer
	vault    *RefreshVault
	resolver *FederationResolver
	svc      *SessionService
	kakao    *stubProvider
	apple    *stubProvider
	naver    *stubProvider
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLifetimes(t, 15*time.Minute, 14*24*time.Hour)
}

func newFixtureWithLifetimes(t *testing.T, access, refresh time.Duration) *fixture {
	t.Helper()

	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	clock := newFakeClock()
	ids, err := idgen.New(1)
	require.NoError(t, err)

	tokens := NewTokenIssuer(testSecret, access, refresh).WithClock(clock.Now)
	vault := NewRefreshVault(users, testArgon2Params())

	kakao := &stubProvider{name: models.ProviderKakao, verifyFn: profileByToken}
	apple := &stubProvider{name: models.ProviderApple, verifyFn: profileByToken}
	naver := &stubProvider{name: models.ProviderNaver, verifyFn: profileByToken}

	resolver := NewFederationResolver(users, tokens, vault, ids, "member", time.Second, kakao, apple, naver)
	svc := NewSessionService(users, NewBcryptHasher(bcrypt.MinCost), tokens, vault, resolver, ids, time.Second).
		WithClock(clock.Now)

	return &fixture{
		db:       db,
		users:    users,
		clock:    clock,
		tokens:   tokens,
		vault:    vault,
		resolver: resolver,
		svc:      svc,
		kakao:    kakao,
		apple:    apple,
		naver:    naver,
	}
}

func (f *fixture) countUsers(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Unscoped().Model(&models.User{}).Count(&n).Error)
	return n
}

func (f *fixture) storedHash(t *testing.T, userID int64) *string {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", userID).Error)
	return user.HashedRefreshToken
}
