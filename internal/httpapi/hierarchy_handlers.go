package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"userhub.org/internal/audit"
	"userhub.org/internal/auth"
	"userhub.org/internal/hierarchy"
)

type createGroupRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

type renameGroupRequest struct {
	Name string `json:"name"`
}

type moveGroupRequest struct {
	ParentID string `json:"parent_id"`
}

func (a *API) handleRoleGroupsCollection(w http.ResponseWriter, r *http.Request) {
	a.handleGroupsCollection(w, r, hierarchy.KindRoleGroup, "/v1/role-groups")
}

func (a *API) handlePermissionGroupsCollection(w http.ResponseWriter, r *http.Request) {
	a.handleGroupsCollection(w, r, hierarchy.KindPermissionGroup, "/v1/permission-groups")
}

func (a *API) handleRoleGroupResource(w http.ResponseWriter, r *http.Request) {
	a.handleGroupResource(w, r, hierarchy.KindRoleGroup, "/v1/role-groups/")
}

func (a *API) handlePermissionGroupResource(w http.ResponseWriter, r *http.Request) {
	a.handleGroupResource(w, r, hierarchy.KindPermissionGroup, "/v1/permission-groups/")
}

func (a *API) handleGroupsCollection(w http.ResponseWriter, r *http.Request, kind hierarchy.Kind, base string) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.PermissionManageGroups) {
			return
		}
		var req createGroupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		node, err := a.svc.CreateGroup(r.Context(), kind, req.Name, req.ParentID)
		if err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventGroupCreated, map[string]any{
			"kind":     string(kind),
			"group_id": node.ID,
			"name":     node.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/%s", base, node.ID))
		writeJSON(w, http.StatusCreated, node)
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermissionReadUsers) {
			return
		}
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			matches, err := a.svc.SearchGroups(kind, q)
			if err != nil {
				handleHierarchyError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
			return
		}
		forest, err := a.svc.Hierarchy(kind)
		if err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roots": forest.Roots()})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request, kind hierarchy.Kind, prefix string) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	groupID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleGroup(w, r, kind, groupID)
	case len(parts) == 2 && parts[1] == "move":
		a.handleGroupMove(w, r, kind, groupID)
	case len(parts) == 2 && parts[1] == "subtree":
		a.handleGroupSubtree(w, r, kind, groupID)
	case len(parts) == 2 && parts[1] == "roles" && kind == hierarchy.KindRoleGroup:
		a.handleGroupRoles(w, r, groupID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGroup(w http.ResponseWriter, r *http.Request, kind hierarchy.Kind, groupID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.PermissionReadUsers) {
			return
		}
		forest, err := a.svc.Hierarchy(kind)
		if err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		node, err := forest.Get(groupID)
		if err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, node)
	case http.MethodPatch:
		if !a.ensurePermission(w, r, auth.PermissionManageGroups) {
			return
		}
		var req renameGroupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		node, err := a.svc.RenameGroup(r.Context(), kind, groupID, req.Name)
		if err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventGroupRenamed, map[string]any{
			"kind":     string(kind),
			"group_id": groupID,
			"name":     node.Name,
		})
		writeJSON(w, http.StatusOK, node)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.PermissionManageGroups) {
			return
		}
		if err := a.svc.DeleteGroup(r.Context(), kind, groupID); err != nil {
			handleHierarchyError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventGroupDeleted, map[string]any{
			"kind":     string(kind),
			"group_id": groupID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleGroupMove(w http.ResponseWriter, r *http.Request, kind hierarchy.Kind, groupID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, auth.PermissionManageGroups) {
		return
	}
	var req moveGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	node, err := a.svc.MoveGroup(r.Context(), kind, groupID, req.ParentID)
	if err != nil {
		handleHierarchyError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventGroupMoved, map[string]any{
		"kind":      string(kind),
		"group_id":  groupID,
		"parent_id": req.ParentID,
	})
	writeJSON(w, http.StatusOK, node)
}

// handleGroupSubtree streams the pre-order walk straight into the array
// without materializing it first.
func (a *API) handleGroupSubtree(w http.ResponseWriter, r *http.Request, kind hierarchy.Kind, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, auth.PermissionReadUsers) {
		return
	}
	seq, err := a.svc.GroupSubtree(kind, groupID)
	if err != nil {
		handleHierarchyError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("["))
	first := true
	for node := range seq {
		if !first {
			_, _ = w.Write([]byte(","))
		}
		first = false
		writeNode(w, node)
	}
	_, _ = w.Write([]byte("]\n"))
}

func (a *API) handleGroupRoles(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, auth.PermissionReadUsers) {
		return
	}
	roles, err := a.svc.RolesForGroup(r.Context(), groupID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"roles":    roles,
	})
}
