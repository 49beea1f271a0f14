package auth

import (
	"context"
	"time"

	"userhub.org/internal/hierarchy"
)

// Store describes persistence operations required by the auth subsystem.
// Implementations hold no business logic.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Groups(ctx context.Context) GroupStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// UpdateLoginState persists the lockout counters in one write so a
	// failed attempt increments exactly once even under retry.
	UpdateLoginState(ctx context.Context, userID string, failed int, lastFailedAt *time.Time, locked bool, lockedUntil *time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error
	SetActive(ctx context.Context, userID string, active bool) error
}

// RoleStore manages roles and user assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	CountByGroup(ctx context.Context, groupID string) (int, error)
	Assign(ctx context.Context, assignment Assignment) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
	AssignmentCount(ctx context.Context, roleID string) (int, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	Create(ctx context.Context, perm *Permission) error
	List(ctx context.Context) ([]Permission, error)
	CountByGroup(ctx context.Context, groupID string) (int, error)
	SetForRole(ctx context.Context, roleID string, keys []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
}

// GroupStore persists forest nodes for both group kinds. Structural
// invariants live in the hierarchy engine, never here.
type GroupStore interface {
	Save(ctx context.Context, kind hierarchy.Kind, n hierarchy.Node) error
	Delete(ctx context.Context, kind hierarchy.Kind, id string) error
	List(ctx context.Context, kind hierarchy.Kind) ([]hierarchy.Node, error)
}

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByFamily(ctx context.Context, familyID string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}
