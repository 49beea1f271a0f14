package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"userhub.org/internal/obs"
)

// LockoutPolicy is the brute-force defense applied to failed logins.
// Reaching MaxFailures consecutive failures inside Window locks the
// account for Duration. The lock is time-bounded, not a ban.
type LockoutPolicy struct {
	MaxFailures int
	Window      time.Duration
	Duration    time.Duration
}

// DefaultLockoutPolicy mirrors common interactive-login hardening.
var DefaultLockoutPolicy = LockoutPolicy{
	MaxFailures: 5,
	Window:      15 * time.Minute,
	Duration:    15 * time.Minute,
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with its stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// verifyCredentials applies the full credential check: lockout state
// first (so the response for a locked account leaks nothing about the
// password), then the hash comparison and failure accounting. On success
// with a stale password it returns the user together with
// ErrPasswordChangeRequired.
func (s *Service) verifyCredentials(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if user.Locked && user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, &LockedError{Until: *user.LockedUntil}
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, s.recordLoginFailure(ctx, user, now)
	}

	// Success clears the failure counter and any expired lock.
	if user.FailedAttempts > 0 || user.Locked {
		if err := users.UpdateLoginState(ctx, user.ID, 0, nil, false, nil); err != nil {
			return nil, err
		}
	}

	if user.NeedsPasswordChange || (user.PasswordExpiresAt != nil && now.After(*user.PasswordExpiresAt)) {
		return user, ErrPasswordChangeRequired
	}
	return user, nil
}

// recordLoginFailure increments the rolling-window failure counter and
// transitions the account to locked when the threshold is reached. Each
// distinct failed attempt increments exactly once.
func (s *Service) recordLoginFailure(ctx context.Context, user *User, now time.Time) error {
	failed := user.FailedAttempts + 1
	if user.LastFailedAt != nil && now.Sub(*user.LastFailedAt) > s.lockout.Window {
		failed = 1
	}
	lastAt := now

	if failed >= s.lockout.MaxFailures {
		until := now.Add(s.lockout.Duration)
		if err := s.store.Users(ctx).UpdateLoginState(ctx, user.ID, failed, &lastAt, true, &until); err != nil {
			return err
		}
		obs.IncLockout()
		if s.mailer != nil {
			_ = s.mailer.SendLockoutNotice(ctx, user.Email, until)
		}
		return &LockedError{Until: until}
	}

	if err := s.store.Users(ctx).UpdateLoginState(ctx, user.ID, failed, &lastAt, false, nil); err != nil {
		return err
	}
	return ErrInvalidCredentials
}

// ChangePassword verifies the current password and installs a new one.
// It is the exit from the partial-authentication state, so a pending
// ErrPasswordChangeRequired does not block it. All refresh tokens for the
// user are revoked; open sessions must re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	user, err := s.verifyCredentials(ctx, email, oldPassword)
	if err != nil && !errors.Is(err, ErrPasswordChangeRequired) {
		return err
	}
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	if newPassword == oldPassword {
		return fmt.Errorf("%w: new password must differ from the old one", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return err
	}
	return s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, user.ID)
}
