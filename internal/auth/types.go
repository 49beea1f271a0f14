package auth

import "time"

// User is a human account. Users are never physically deleted while audit
// or ownership records reference them; deactivation is the terminal state.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Active              bool       `json:"active"`
	Superuser           bool       `json:"superuser"`
	Verified            bool       `json:"verified"`
	Locked              bool       `json:"locked"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	FailedAttempts      int        `json:"-"`
	LastFailedAt        *time.Time `json:"-"`
	NeedsPasswordChange bool       `json:"needs_password_change"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty"`
	PasswordExpiresAt   *time.Time `json:"password_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role bundles permissions. GroupID is placement inside the role-group
// forest, not ownership: the role keeps existing if its group goes away.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GroupID     string    `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a fine-grained capability, keyed "resource.action".
// Unlike roles, every permission belongs to a permission group.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	GroupID     string    `json:"group_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment links a user to a role.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the persisted half of an opaque refresh credential.
// FamilyID ties together every token descended from one login, so a
// replayed token can burn the whole chain.
type RefreshToken struct {
	ID        string
	UserID    string
	FamilyID  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// SessionTokens is everything a client receives on login or refresh.
type SessionTokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	CSRFToken        string    `json:"csrf_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RoleUpdate carries optional role field changes. A non-nil empty GroupID
// clears the placement.
type RoleUpdate struct {
	Name        *string
	Description *string
	GroupID     *string
}
