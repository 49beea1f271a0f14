package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"userhub.org/internal/hierarchy"
	"userhub.org/internal/ids"
)

// CreateRole registers a role, optionally placed under a role group.
func (s *Service) CreateRole(ctx context.Context, name, description, groupID string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if groupID != "" {
		if _, err := s.roleGroups.Get(groupID); err != nil {
			return nil, fmt.Errorf("%w: role group %s does not exist", ErrInvalidInput, groupID)
		}
	}
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		GroupID:     groupID,
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole applies a partial update. A nil field leaves the current
// value untouched; an empty GroupID pointer detaches the role from its
// group.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: role name must not be empty", ErrInvalidInput)
	}
	if upd.GroupID != nil && *upd.GroupID != "" {
		if _, err := s.roleGroups.Get(*upd.GroupID); err != nil {
			return nil, fmt.Errorf("%w: role group %s does not exist", ErrInvalidInput, *upd.GroupID)
		}
	}
	roles := s.store.Roles(ctx)
	role, err := roles.Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		role.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.GroupID != nil {
		role.GroupID = *upd.GroupID
	}
	if err := roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role. Roles still assigned to users are kept; the
// caller must unassign first.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	n, err := roles.AssignmentCount(ctx, roleID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: role is assigned to %d user(s)", ErrConflict, n)
	}
	if err := roles.Delete(ctx, roleID); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	return nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// CreatePermission registers a permission key. Unlike roles, every
// permission must live in a permission group.
func (s *Service) CreatePermission(ctx context.Context, key, description, groupID string) (*Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: permission key is required", ErrInvalidInput)
	}
	if groupID == "" {
		return nil, fmt.Errorf("%w: permission group is required", ErrInvalidInput)
	}
	if _, err := s.permGroups.Get(groupID); err != nil {
		return nil, fmt.Errorf("%w: permission group %s does not exist", ErrInvalidInput, groupID)
	}
	perm := &Permission{
		ID:          ids.New(),
		Key:         key,
		Description: strings.TrimSpace(description),
		GroupID:     groupID,
	}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions returns all registered permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// EnsureBuiltins creates the system permission group and the built-in
// permission keys if missing. Safe to call on every startup.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	groupID := ""
	for _, root := range s.permGroups.Roots() {
		if strings.EqualFold(root.Name, systemGroupName) {
			groupID = root.ID
			break
		}
	}
	if groupID == "" {
		node, err := s.permGroups.Create(ctx, systemGroupName, "")
		if err != nil {
			return err
		}
		groupID = node.ID
	}
	perms := make([]Permission, 0, len(BuiltinPermissions))
	for _, b := range BuiltinPermissions {
		b.ID = ids.New()
		b.GroupID = groupID
		b.CreatedAt = s.now()
		perms = append(perms, b)
	}
	return s.store.Permissions(ctx).Ensure(ctx, perms)
}

// SetRolePermissions replaces a role's permission set atomically.
// Duplicate keys collapse; effective sets are recomputed lazily on the
// next authorization check.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(keys))
	deduped := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, key)
	}
	if err := s.store.Permissions(ctx).SetForRole(ctx, roleID, deduped); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	return nil
}

// AssignRole grants a role to a user. Assigning an already-held role is
// a no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	assignment := Assignment{UserID: userID, RoleID: roleID, CreatedAt: s.now()}
	if err := s.store.Roles(ctx).Assign(ctx, assignment); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// UnassignRole revokes a role from a user.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.Roles(ctx).Unassign(ctx, userID, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

// RolesForGroup lists roles attached directly to a role group node.
func (s *Service) RolesForGroup(ctx context.Context, groupID string) ([]*Role, error) {
	if _, err := s.roleGroups.Get(groupID); err != nil {
		return nil, fmt.Errorf("%w: role group %s", ErrNotFound, groupID)
	}
	all, err := s.store.Roles(ctx).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Role, 0)
	for _, r := range all {
		if r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out, nil
}

// forest returns the hierarchy for the given kind.
func (s *Service) forest(kind hierarchy.Kind) (*hierarchy.Forest, error) {
	switch kind {
	case hierarchy.KindRoleGroup:
		return s.roleGroups, nil
	case hierarchy.KindPermissionGroup:
		return s.permGroups, nil
	default:
		return nil, fmt.Errorf("%w: unknown hierarchy kind %q", ErrInvalidInput, kind)
	}
}
