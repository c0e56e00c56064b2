package auth

import "errors"

// Role is an operator's authorisation tier.
type Role string

const (
	// RoleViewer may read headset state, priorities and history.
	RoleViewer Role = "viewer"

	// RoleAdmin may additionally connect, disconnect, route audio and change
	// priorities.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role.
var ValidRoles = []Role{RoleViewer, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Operator is a configured API login.
type Operator struct {
	Username     string
	PasswordHash string
	Role         Role
}

// Sentinel errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidOperator    = errors.New("invalid operator")
)
