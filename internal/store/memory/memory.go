// Package memory provides an in-process implementation of auth.Store.
// It backs tests and local development; production deployments use the
// Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"userhub.org/internal/auth"
	"userhub.org/internal/hierarchy"
)

// Store keeps all records in maps guarded by a single mutex. Operations
// copy values in and out, so callers never alias internal state.
type Store struct {
	mu sync.RWMutex

	users       map[string]auth.User
	usersByMail map[string]string

	roles       map[string]auth.Role
	assignments map[string]map[string]auth.Assignment // userID -> roleID -> assignment

	permissions map[string]auth.Permission // keyed by permission key
	rolePerms   map[string]map[string]struct{}

	groups map[hierarchy.Kind]map[string]hierarchy.Node

	tokens map[string]auth.RefreshToken
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]auth.User),
		usersByMail: make(map[string]string),
		roles:       make(map[string]auth.Role),
		assignments: make(map[string]map[string]auth.Assignment),
		permissions: make(map[string]auth.Permission),
		rolePerms:   make(map[string]map[string]struct{}),
		groups: map[hierarchy.Kind]map[string]hierarchy.Node{
			hierarchy.KindRoleGroup:       make(map[string]hierarchy.Node),
			hierarchy.KindPermissionGroup: make(map[string]hierarchy.Node),
		},
		tokens: make(map[string]auth.RefreshToken),
	}
}

func (s *Store) Users(context.Context) auth.UserStore                 { return userStore{s} }
func (s *Store) Roles(context.Context) auth.RoleStore                 { return roleStore{s} }
func (s *Store) Permissions(context.Context) auth.PermissionStore     { return permissionStore{s} }
func (s *Store) Groups(context.Context) auth.GroupStore               { return groupStore{s} }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore { return tokenStore{s} }

type userStore struct{ s *Store }

func (u userStore) Create(_ context.Context, user *auth.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", auth.ErrConflict, user.ID)
	}
	key := strings.ToLower(user.Email)
	if _, ok := u.s.usersByMail[key]; ok {
		return fmt.Errorf("%w: email already registered", auth.ErrConflict)
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	u.s.users[user.ID] = *user
	u.s.usersByMail[key] = user.ID
	return nil
}

func (u userStore) Find(_ context.Context, id string) (*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return &user, nil
}

func (u userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	id, ok := u.s.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%w: no user for email", auth.ErrNotFound)
	}
	user := u.s.users[id]
	return &user, nil
}

func (u userStore) List(_ context.Context) ([]*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make([]*auth.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		cp := user
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (u userStore) UpdateLoginState(_ context.Context, userID string, failed int, lastFailedAt *time.Time, locked bool, lockedUntil *time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	user.FailedAttempts = failed
	user.LastFailedAt = copyTime(lastFailedAt)
	user.Locked = locked
	user.LockedUntil = copyTime(lockedUntil)
	user.UpdatedAt = time.Now()
	u.s.users[userID] = user
	return nil
}

func (u userStore) UpdatePassword(_ context.Context, userID, passwordHash string, changedAt time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = &changedAt
	user.NeedsPasswordChange = false
	user.PasswordExpiresAt = nil
	user.UpdatedAt = time.Now()
	u.s.users[userID] = user
	return nil
}

func (u userStore) SetActive(_ context.Context, userID string, active bool) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	u.s.users[userID] = user
	return nil
}

type roleStore struct{ s *Store }

func (r roleStore) Create(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return fmt.Errorf("%w: role name %q", auth.ErrConflict, role.Name)
		}
	}
	now := time.Now()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	r.s.roles[role.ID] = *role
	return nil
}

func (r roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	return &role, nil
}

func (r roleStore) List(_ context.Context) ([]*auth.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*auth.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		cp := role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r roleStore) Update(_ context.Context, role *auth.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[role.ID]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, role.ID)
	}
	role.UpdatedAt = time.Now()
	r.s.roles[role.ID] = *role
	return nil
}

func (r roleStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	delete(r.s.roles, id)
	delete(r.s.rolePerms, id)
	for userID, byRole := range r.s.assignments {
		delete(byRole, id)
		if len(byRole) == 0 {
			delete(r.s.assignments, userID)
		}
	}
	return nil
}

func (r roleStore) CountByGroup(_ context.Context, groupID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, role := range r.s.roles {
		if role.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (r roleStore) Assign(_ context.Context, a auth.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[a.RoleID]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, a.RoleID)
	}
	byRole, ok := r.s.assignments[a.UserID]
	if !ok {
		byRole = make(map[string]auth.Assignment)
		r.s.assignments[a.UserID] = byRole
	}
	if _, ok := byRole[a.RoleID]; ok {
		return fmt.Errorf("%w: role already assigned", auth.ErrConflict)
	}
	byRole[a.RoleID] = a
	return nil
}

func (r roleStore) Unassign(_ context.Context, userID, roleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byRole, ok := r.s.assignments[userID]
	if !ok {
		return fmt.Errorf("%w: assignment", auth.ErrNotFound)
	}
	if _, ok := byRole[roleID]; !ok {
		return fmt.Errorf("%w: assignment", auth.ErrNotFound)
	}
	delete(byRole, roleID)
	if len(byRole) == 0 {
		delete(r.s.assignments, userID)
	}
	return nil
}

func (r roleStore) Assignments(_ context.Context, userID string) ([]auth.Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byRole := r.s.assignments[userID]
	out := make([]auth.Assignment, 0, len(byRole))
	for _, a := range byRole {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

func (r roleStore) AssignmentCount(_ context.Context, roleID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, byRole := range r.s.assignments {
		if _, ok := byRole[roleID]; ok {
			n++
		}
	}
	return n, nil
}

type permissionStore struct{ s *Store }

func (p permissionStore) Ensure(_ context.Context, perms []auth.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, perm := range perms {
		if _, ok := p.s.permissions[perm.Key]; ok {
			continue
		}
		if perm.CreatedAt.IsZero() {
			perm.CreatedAt = time.Now()
		}
		p.s.permissions[perm.Key] = perm
	}
	return nil
}

func (p permissionStore) Create(_ context.Context, perm *auth.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.permissions[perm.Key]; ok {
		return fmt.Errorf("%w: permission %q", auth.ErrConflict, perm.Key)
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now()
	}
	p.s.permissions[perm.Key] = *perm
	return nil
}

func (p permissionStore) List(_ context.Context) ([]auth.Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(p.s.permissions))
	for _, perm := range p.s.permissions {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (p permissionStore) CountByGroup(_ context.Context, groupID string) (int, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	n := 0
	for _, perm := range p.s.permissions {
		if perm.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (p permissionStore) SetForRole(_ context.Context, roleID string, keys []string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, key := range keys {
		if _, ok := p.s.permissions[key]; !ok {
			return fmt.Errorf("%w: permission %q", auth.ErrNotFound, key)
		}
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	p.s.rolePerms[roleID] = set
	return nil
}

func (p permissionStore) PermissionsForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	set := p.s.rolePerms[roleID]
	out := make([]auth.Permission, 0, len(set))
	for key := range set {
		if perm, ok := p.s.permissions[key]; ok {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type groupStore struct{ s *Store }

func (g groupStore) Save(_ context.Context, kind hierarchy.Kind, n hierarchy.Node) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	nodes, ok := g.s.groups[kind]
	if !ok {
		return fmt.Errorf("%w: unknown group kind %q", auth.ErrInvalidInput, kind)
	}
	nodes[n.ID] = n
	return nil
}

func (g groupStore) Delete(_ context.Context, kind hierarchy.Kind, id string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	nodes, ok := g.s.groups[kind]
	if !ok {
		return fmt.Errorf("%w: unknown group kind %q", auth.ErrInvalidInput, kind)
	}
	delete(nodes, id)
	return nil
}

func (g groupStore) List(_ context.Context, kind hierarchy.Kind) ([]hierarchy.Node, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	nodes, ok := g.s.groups[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group kind %q", auth.ErrInvalidInput, kind)
	}
	out := make([]hierarchy.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type tokenStore struct{ s *Store }

func (t tokenStore) Create(_ context.Context, tok *auth.RefreshToken) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.tokens[tok.ID]; ok {
		return fmt.Errorf("%w: token %s", auth.ErrConflict, tok.ID)
	}
	t.s.tokens[tok.ID] = *tok
	return nil
}

func (t tokenStore) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", auth.ErrNotFound, id)
	}
	return &tok, nil
}

func (t tokenStore) MarkRevoked(_ context.Context, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return fmt.Errorf("%w: token %s", auth.ErrNotFound, id)
	}
	tok.Revoked = true
	t.s.tokens[id] = tok
	return nil
}

func (t tokenStore) MarkRevokedByFamily(_ context.Context, familyID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, tok := range t.s.tokens {
		if tok.FamilyID == familyID {
			tok.Revoked = true
			t.s.tokens[id] = tok
		}
	}
	return nil
}

func (t tokenStore) MarkRevokedByUser(_ context.Context, userID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, tok := range t.s.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
			t.s.tokens[id] = tok
		}
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
