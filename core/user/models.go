package user

import (
	"time"

	"github.com/trezcool/masomo-portal/core"
)

// Role determines which navigation table and which protected routes a User may reach.
type Role string

// Roles
const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// AllRoles lists every known role.
var AllRoles = []Role{RoleStudent, RoleParent, RoleTeacher, RoleAdmin}

// ParseRole returns the Role named by s, or false if s is not a known role.
func ParseRole(s string) (Role, bool) {
	role := Role(core.CleanString(s, true /* lower */))
	for _, r := range AllRoles {
		if r == role {
			return role, true
		}
	}
	return "", false
}

// Valid reports whether r is one of AllRoles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok && string(r) == core.CleanString(string(r), true)
}

// Path is the role's own path prefix.
func (r Role) Path() string {
	return "/" + string(r)
}

type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// IsAuthorized is false when role is empty, otherwise reports whether role is one of allowed.
func IsAuthorized(role Role, allowed []Role) bool {
	if role == "" {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// RedirectPath returns the landing page of the given role, "/" for unknown roles.
func RedirectPath(role Role) string {
	switch role {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return role.Path()
	default:
		return "/"
	}
}
