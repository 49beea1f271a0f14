package auth_test

import (
	"context"
	"errors"
	"testing"

	"userhub.org/internal/auth"
	"userhub.org/internal/hierarchy"
)

func TestGroupMutationsPersistAndReload(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	eng, err := svc.CreateGroup(ctx, hierarchy.KindRoleGroup, "Engineering", "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	backend, err := svc.CreateGroup(ctx, hierarchy.KindRoleGroup, "Backend", eng.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := svc.RenameGroup(ctx, hierarchy.KindRoleGroup, backend.ID, "Platform"); err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}

	// A second service over the same store sees the persisted structure.
	other, err := auth.NewService(store, auth.WithSigningSecret([]byte("another secret")))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := other.LoadHierarchies(ctx); err != nil {
		t.Fatalf("LoadHierarchies: %v", err)
	}
	forest, err := other.Hierarchy(hierarchy.KindRoleGroup)
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	node, err := forest.Get(backend.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if node.Name != "Platform" || node.ParentID != eng.ID {
		t.Fatalf("reloaded node = %+v", node)
	}
}

func TestDeleteGroupBlockedByAttachedRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, hierarchy.KindRoleGroup, "Ops", "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	role, err := svc.CreateRole(ctx, "operator", "", group.ID)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := svc.DeleteGroup(ctx, hierarchy.KindRoleGroup, group.ID); !errors.Is(err, hierarchy.ErrHasAssignments) {
		t.Fatalf("delete error = %v, want ErrHasAssignments", err)
	}

	// Detaching the role unblocks the delete.
	empty := ""
	if _, err := svc.UpdateRole(ctx, role.ID, auth.RoleUpdate{GroupID: &empty}); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if err := svc.DeleteGroup(ctx, hierarchy.KindRoleGroup, group.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
}

func TestPermissionRequiresExistingGroup(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreatePermission(ctx, "reports.read", "", ""); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("groupless permission error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CreatePermission(ctx, "reports.read", "", "missing"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("bad-group permission error = %v, want ErrInvalidInput", err)
	}

	group, err := svc.CreateGroup(ctx, hierarchy.KindPermissionGroup, "Reporting", "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := svc.CreatePermission(ctx, "reports.read", "Read reports", group.ID); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
}
