package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidCredentials is deliberately identical for an unknown email
	// and a wrong password so login cannot be used for user enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountLocked matches any LockedError via errors.Is.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrPasswordChangeRequired signals a partially authenticated state:
	// credentials were correct but a full session must not be issued until
	// the password is changed.
	ErrPasswordChangeRequired = errors.New("auth: password change required")

	// Token errors are always fatal to the current session.
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrTokenRevoked     = errors.New("auth: token revoked")
	ErrSignatureInvalid = errors.New("auth: token signature invalid")
	ErrTokenInvalid     = errors.New("auth: invalid token")
)

// LockedError carries the lockout deadline. The countdown is disclosed to
// callers because it helps legitimate users, unlike credential details.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
