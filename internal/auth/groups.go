package auth

import (
	"context"
	"iter"

	"userhub.org/internal/hierarchy"
)

// groupPersister writes hierarchy mutations through to the group store.
type groupPersister struct {
	store Store
}

func (p groupPersister) SaveNode(ctx context.Context, kind hierarchy.Kind, n hierarchy.Node) error {
	return p.store.Groups(ctx).Save(ctx, kind, n)
}

func (p groupPersister) DeleteNode(ctx context.Context, kind hierarchy.Kind, id string) error {
	return p.store.Groups(ctx).Delete(ctx, kind, id)
}

// roleAttachments counts roles placed directly under a role group, used
// by the delete guard.
type roleAttachments struct {
	store Store
}

func (a roleAttachments) Count(ctx context.Context, nodeID string) (int, error) {
	return a.store.Roles(ctx).CountByGroup(ctx, nodeID)
}

// permissionAttachments is the same guard for permission groups.
type permissionAttachments struct {
	store Store
}

func (a permissionAttachments) Count(ctx context.Context, nodeID string) (int, error) {
	return a.store.Permissions(ctx).CountByGroup(ctx, nodeID)
}

// LoadHierarchies populates both forests from persisted group rows. Call
// once at startup, before any group operation.
func (s *Service) LoadHierarchies(ctx context.Context) error {
	groups := s.store.Groups(ctx)
	roleNodes, err := groups.List(ctx, hierarchy.KindRoleGroup)
	if err != nil {
		return err
	}
	if err := s.roleGroups.Load(roleNodes); err != nil {
		return err
	}
	permNodes, err := groups.List(ctx, hierarchy.KindPermissionGroup)
	if err != nil {
		return err
	}
	return s.permGroups.Load(permNodes)
}

// Hierarchy exposes a read-only view of one forest.
func (s *Service) Hierarchy(kind hierarchy.Kind) (*hierarchy.Forest, error) {
	return s.forest(kind)
}

// CreateGroup adds a node to the named hierarchy. Empty parentID means a
// new root.
func (s *Service) CreateGroup(ctx context.Context, kind hierarchy.Kind, name, parentID string) (hierarchy.Node, error) {
	f, err := s.forest(kind)
	if err != nil {
		return hierarchy.Node{}, err
	}
	return f.Create(ctx, name, parentID)
}

// RenameGroup changes a node's name in place.
func (s *Service) RenameGroup(ctx context.Context, kind hierarchy.Kind, id, name string) (hierarchy.Node, error) {
	f, err := s.forest(kind)
	if err != nil {
		return hierarchy.Node{}, err
	}
	return f.Rename(ctx, id, name)
}

// MoveGroup re-parents a node, rejecting moves that would create a
// cycle.
func (s *Service) MoveGroup(ctx context.Context, kind hierarchy.Kind, id, newParentID string) (hierarchy.Node, error) {
	f, err := s.forest(kind)
	if err != nil {
		return hierarchy.Node{}, err
	}
	return f.Move(ctx, id, newParentID)
}

// DeleteGroup removes a leaf node with no attached roles or permissions.
func (s *Service) DeleteGroup(ctx context.Context, kind hierarchy.Kind, id string) error {
	f, err := s.forest(kind)
	if err != nil {
		return err
	}
	return f.Delete(ctx, id)
}

// GroupSubtree returns a lazy pre-order walk rooted at id.
func (s *Service) GroupSubtree(kind hierarchy.Kind, id string) (iter.Seq[hierarchy.Node], error) {
	f, err := s.forest(kind)
	if err != nil {
		return nil, err
	}
	return f.Subtree(id)
}

// SearchGroups finds nodes by case-insensitive substring match, each
// with its ancestor chain.
func (s *Service) SearchGroups(kind hierarchy.Kind, query string) ([]hierarchy.Match, error) {
	f, err := s.forest(kind)
	if err != nil {
		return nil, err
	}
	return f.Search(query), nil
}
