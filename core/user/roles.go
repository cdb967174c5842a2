package user

import "strings"

// Roles are namespaced by account kind: every "admin:..." role is an admin role.
const (
	RoleAdmin          = "admin:"
	RoleAdminPrincipal = "admin:principal"
	RoleTeacher        = "teacher:"
	RoleStudent        = "student:"
)

var knownRoles = map[string]bool{
	RoleAdmin:          true,
	RoleAdminPrincipal: true,
	RoleTeacher:        true,
	RoleStudent:        true,
}

// ValidRoles reports whether every one of roles is known.
func ValidRoles(roles []string) bool {
	for _, role := range roles {
		if !knownRoles[role] {
			return false
		}
	}
	return true
}

func hasRolePrefix(roles []string, prefix string) bool {
	for _, role := range roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}
