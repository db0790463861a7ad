package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	for _, pw := range []string{"Passw0rd1", "correct horse battery staple", strings.Repeat("x", 72)} {
		hash, err := h.Hash(pw)
		require.NoError(t, err)
		assert.True(t, h.Verify(pw, hash), pw)
		assert.False(t, h.Verify(pw+"!", hash), pw)
	}
}

func TestBcryptHasherSaltsEveryHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	first, err := h.Hash("Passw0rd1")
	require.NoError(t, err)
	second, err := h.Hash("Passw0rd1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("Passw0rd1", first))
	assert.True(t, h.Verify("Passw0rd1", second))
}

func TestBcryptHasherPolicy(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.ErrorIs(t, err, ErrKindValidation)
}

func TestBcryptHasherRejectsInputPastBcryptLimit(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	pw := strings.Repeat("x", 72)
	hash, err := h.Hash(pw)
	require.NoError(t, err)

	assert.True(t, h.Verify(pw, hash))
	assert.False(t, h.Verify(pw+"!", hash))
	assert.False(t, h.Verify(pw+strings.Repeat("y", 100), hash))
}

func TestBcryptHasherRejectsEmptyOrGarbageHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("Passw0rd1", ""))
	assert.False(t, h.Verify("Passw0rd1", "not-a-bcrypt-hash"))
}
