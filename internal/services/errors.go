package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the session core wraps exactly one of
// these so handlers can map by kind with errors.Is.
var (
	ErrKindConflict     = errors.New("conflict")
	ErrKindUnauthorized = errors.New("unauthorized")
	ErrKindForbidden    = errors.New("forbidden")
	ErrKindInvalidToken = errors.New("invalid token")
	ErrKindFederation   = errors.New("federation")
	ErrKindNotFound     = errors.New("not found")
	ErrKindPersistence  = errors.New("persistence")
	ErrKindValidation   = errors.New("validation")
)

var (
	ErrEmailTaken          = &Error{Kind: ErrKindConflict, Message: "email already exists"}
	ErrInvalidCredentials  = &Error{Kind: ErrKindUnauthorized, Message: "invalid email or password"}
	ErrRefreshNotValid     = &Error{Kind: ErrKindForbidden, Message: "refresh token not valid"}
	ErrRefreshMismatch     = &Error{Kind: ErrKindForbidden, Message: "refresh token mismatch"}
	ErrInvalidToken        = &Error{Kind: ErrKindInvalidToken, Message: "invalid or expired token"}
	ErrFederation          = &Error{Kind: ErrKindFederation, Message: "social login failed, try again"}
	ErrUserNotFound        = &Error{Kind: ErrKindNotFound, Message: "user not found"}
	ErrPersistence         = &Error{Kind: ErrKindPersistence, Message: "storage failure"}
	ErrUnsupportedProvider = &Error{Kind: ErrKindValidation, Message: "unsupported social provider"}
	ErrWeakPassword        = &Error{Kind: ErrKindValidation, Message: "password must be between 8 and 72 bytes"}
	ErrInvalidEmail        = &Error{Kind: ErrKindValidation, Message: "a valid email is required"}
)

// Error is a caller-safe message tagged with its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// persistenceError tags a storage failure while keeping the driver error in
// the chain for logging.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// federationError tags a provider failure.
func federationError(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrFederation, err)
}

// PublicMessage returns the message safe to show a client for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
