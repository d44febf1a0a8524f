package auth

// Permission catalog. The set is closed: mutations against unknown keys are
// rejected at the service layer.
const (
	PermissionManageUsers       = "users.manage"
	PermissionManageRoles       = "roles.manage"
	PermissionManagePermissions = "permissions.manage"
	PermissionSendBlast         = "blast.send"
	PermissionReadLogs          = "logs.read"
	PermissionCleanupLogs       = "logs.cleanup"
	PermissionManageTemplates   = "templates.manage"
)

// AllPermissions enumerates every valid permission key.
var AllPermissions = []string{
	PermissionManageUsers,
	PermissionManageRoles,
	PermissionManagePermissions,
	PermissionSendBlast,
	PermissionReadLogs,
	PermissionCleanupLogs,
	PermissionManageTemplates,
}

// ValidPermission reports whether key belongs to the closed catalog.
func ValidPermission(key string) bool {
	for _, p := range AllPermissions {
		if p == key {
			return true
		}
	}
	return false
}

// Known roles.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
)

// AllRoles enumerates every role the service recognises.
var AllRoles = []string{RoleSuperAdmin, RoleAdmin, RoleOperator, RoleViewer}

// ValidRole reports whether the role is recognised.
func ValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// defaultRolePermissions is the compiled mapping used only to seed the
// role_permissions table and as a fallback for roles with no persisted rows.
// It is never consulted when persisted rows exist for a role.
var defaultRolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionManageUsers,
		PermissionManageRoles,
		PermissionSendBlast,
		PermissionReadLogs,
		PermissionManageTemplates,
	},
	RoleOperator: {
		PermissionSendBlast,
		PermissionReadLogs,
	},
	RoleViewer: {
		PermissionReadLogs,
	},
}

// DefaultPermissions returns a copy of the seed mapping for a role.
// super_admin has no seed rows: it always resolves to the full catalog.
func DefaultPermissions(role string) []string {
	perms, ok := defaultRolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
