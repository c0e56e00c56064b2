package auth

// Permission is a named capability.
type Permission string

const (
	// PermHeadsetRead covers every read-only endpoint.
	PermHeadsetRead Permission = "headset:read"

	// PermHeadsetAdmin covers every endpoint that changes state.
	PermHeadsetAdmin Permission = "headset:admin"
)

// rolePermissions is the single source of truth for what each role may do.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {PermHeadsetRead},
	RoleAdmin:  {PermHeadsetRead, PermHeadsetAdmin},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	return append([]Permission(nil), perms...)
}
