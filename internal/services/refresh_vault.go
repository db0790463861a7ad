package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/repository"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

// Argon2Params controls refresh-token hashing cost.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

var errMalformedHash = errors.New("malformed refresh token hash")

// RefreshVault owns users.hashed_refresh_token. Nothing else writes that
// column. One hash per user: a new session replaces the previous one.
type RefreshVault struct {
	users  repository.UserRepository
	params Argon2Params
}

func NewRefreshVault(users repository.UserRepository, params Argon2Params) *RefreshVault {
	return &RefreshVault{users: users, params: params}
}

// WithRepository returns a vault writing through repo, typically a
// transaction-scoped repository.
func (v *RefreshVault) WithRepository(repo repository.UserRepository) *RefreshVault {
	return &RefreshVault{users: repo, params: v.params}
}

// Store hashes token and replaces whatever hash the user had.
func (v *RefreshVault) Store(ctx context.Context, userID int64, token string) error {
	hash, err := v.hash(token)
	if err != nil {
		return err
	}
	if err := v.users.Update(ctx, userID, map[string]interface{}{"hashed_refresh_token": hash}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return persistenceError("store refresh hash", err)
	}
	return nil
}

// Check returns the stored hash when token is the user's current refresh
// token. A missing user is ErrUserNotFound, an ended session is
// ErrRefreshNotValid and any other token is ErrRefreshMismatch.
func (v *RefreshVault) Check(ctx context.Context, userID int64, token string) (string, error) {
	user, err := v.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", persistenceError("load refresh hash", err)
	}
	if user.HashedRefreshToken == nil {
		return "", ErrRefreshNotValid
	}
	if !v.Matches(*user.HashedRefreshToken, token) {
		return "", ErrRefreshMismatch
	}
	return *user.HashedRefreshToken, nil
}

// Validate is Check reduced to a yes or no; only storage failures are errors.
func (v *RefreshVault) Validate(ctx context.Context, userID int64, token string) (bool, error) {
	_, err := v.Check(ctx, userID, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRefreshNotValid), errors.Is(err, ErrRefreshMismatch):
		return false, nil
	default:
		return false, err
	}
}

// Matches compares token against a stored PHC hash in constant time.
func (v *RefreshVault) Matches(storedHash, token string) bool {
	params, salt, expected, err := decodeHash(storedHash)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(token), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// Replace installs token only if the stored hash is still previousHash. A
// concurrent rotation that won the race makes this return ErrRefreshMismatch.
func (v *RefreshVault) Replace(ctx context.Context, userID int64, previousHash, token string) error {
	hash, err := v.hash(token)
	if err != nil {
		return err
	}
	swapped, err := v.users.SwapRefreshHash(ctx, userID, previousHash, &hash)
	if err != nil {
		return persistenceError("rotate refresh hash", err)
	}
	if !swapped {
		return ErrRefreshMismatch
	}
	return nil
}

// Clear ends the user's session.
func (v *RefreshVault) Clear(ctx context.Context, userID int64) error {
	if err := v.users.Update(ctx, userID, map[string]interface{}{"hashed_refresh_token": nil}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return persistenceError("clear refresh hash", err)
	}
	return nil
}

// hash encodes as $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
func (v *RefreshVault) hash(token string) (string, error) {
	salt := make([]byte, v.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(token), salt, v.params.Iterations, v.params.MemoryKiB, v.params.Parallelism, v.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.MemoryKiB,
		v.params.Iterations,
		v.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	return Argon2Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, nil
}
