package httpapi

import (
	"net/http"
	"strings"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/auth"
)

type permissionRequest struct {
	Permission string `json:"permission"`
}

type replacePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionManagePermissions) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": auth.AllPermissions,
		"roles":       auth.AllRoles,
	})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	role := parts[0]

	switch r.Method {
	case http.MethodGet:
		a.handleListRolePermissions(w, r, role)
	case http.MethodPost:
		a.handleAddRolePermission(w, r, role)
	case http.MethodDelete:
		a.handleRemoveRolePermission(w, r, role)
	case http.MethodPut:
		a.handleReplaceRolePermissions(w, r, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut)
	}
}

func (a *API) handleListRolePermissions(w http.ResponseWriter, r *http.Request, role string) {
	if !a.ensurePermissions(w, r, auth.PermissionManagePermissions) {
		return
	}
	rows, err := a.auth.Permissions().List(r.Context(), role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resolved, err := a.auth.Permissions().Resolve(r.Context(), []string{role})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	effective := make([]string, 0, len(resolved))
	for _, p := range auth.AllPermissions {
		if _, ok := resolved[p]; ok {
			effective = append(effective, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":      role,
		"persisted": rows,
		"effective": effective,
	})
}

func (a *API) handleAddRolePermission(w http.ResponseWriter, r *http.Request, role string) {
	if !a.ensurePermissions(w, r, auth.PermissionManagePermissions) {
		return
	}
	var req permissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.auth.Permissions().Add(r.Context(), role, req.Permission, actorID(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission.added", map[string]any{
		"role":       role,
		"permission": req.Permission,
		"created":    created,
	})
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{"created": created})
}

func (a *API) handleRemoveRolePermission(w http.ResponseWriter, r *http.Request, role string) {
	if !a.ensurePermissions(w, r, auth.PermissionManagePermissions) {
		return
	}
	permission := strings.TrimSpace(r.URL.Query().Get("permission"))
	if permission == "" {
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "permission is required")
			return
		}
		permission = req.Permission
	}
	removed, err := a.auth.Permissions().Remove(r.Context(), role, permission)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission.removed", map[string]any{
		"role":       role,
		"permission": permission,
		"removed":    removed,
	})
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (a *API) handleReplaceRolePermissions(w http.ResponseWriter, r *http.Request, role string) {
	if !a.ensurePermissions(w, r, auth.PermissionManagePermissions) {
		return
	}
	var req replacePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.Permissions().Replace(r.Context(), role, req.Permissions, actorID(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permissions.replaced", map[string]any{
		"role":  role,
		"count": len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func actorID(r *http.Request) string {
	return auth.ActorID(r.Context())
}
