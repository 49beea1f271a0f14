package auth

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Principal is a user with their resolved permission set.
type Principal struct {
	User        *User
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal may execute the action
// identified by key. Superusers pass every check.
func (p Principal) HasPermission(key string) bool {
	if p.User != nil && p.User.Superuser {
		return true
	}
	_, ok := p.Permissions[key]
	return ok
}

// Resolver computes effective permission sets: the flat union of
// permissions across every role directly assigned to the user. Group
// hierarchies are organizational only and contribute nothing here. The
// computation is deterministic and side-effect free, so results are
// cached per user until an assignment or role-permission mutation
// invalidates them.
type Resolver struct {
	store Store
	cache *lru.Cache[string, map[string]struct{}]
}

// NewResolver builds a resolver with an LRU cache of the given size.
func NewResolver(store Store, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[string, map[string]struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, cache: cache}, nil
}

// EffectiveSet returns the user's effective permission keys. The returned
// map is the caller's to keep; cached state is never aliased out.
func (r *Resolver) EffectiveSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	if set, ok := r.cache.Get(userID); ok {
		return cloneSet(set), nil
	}
	assignments, err := r.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, a := range assignments {
		perms, err := r.store.Permissions(ctx).PermissionsForRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			set[p.Key] = struct{}{}
		}
	}
	r.cache.Add(userID, set)
	return cloneSet(set), nil
}

// HasPermission is the single authorization check protected operations
// call. It is pure: no side effects beyond cache warming.
func (r *Resolver) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	set, err := r.EffectiveSet(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := set[key]
	return ok, nil
}

// Invalidate evicts one user's cached set (assignment change).
func (r *Resolver) Invalidate(userID string) {
	r.cache.Remove(userID)
}

// InvalidateAll drops every cached set (role or permission mutation).
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
}

// SortedKeys flattens a permission set for stable output.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneSet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}
