package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/auth"
)

type createUserRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Name     *string  `json:"name"`
	Roles    []string `json:"roles"`
	IsActive *bool    `json:"is_active"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreateUser(w, r)
	case http.MethodGet:
		a.handleListUsers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermissionManageUsers) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.created", map[string]any{
		"target_user_id": user.ID,
		"email":          user.Email,
		"roles":          user.Roles,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermissionManageUsers) {
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		a.handleUpdateUser(w, r, userID)
	case http.MethodDelete:
		a.handleDeleteUser(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.ensurePermissions(w, r, auth.PermissionManageUsers) {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.UpdateUser(r.Context(), userID, auth.UserUpdate{
		Name:     req.Name,
		Roles:    req.Roles,
		IsActive: req.IsActive,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{
		"target_user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.ensurePermissions(w, r, auth.PermissionManageUsers) {
		return
	}
	if err := a.auth.DeleteUser(r.Context(), userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{
		"target_user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}
