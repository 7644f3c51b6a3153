package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthorized(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		allowed []Role
		want    bool
	}{
		{name: "no role", allowed: AllRoles, want: false},
		{name: "no role, nothing allowed", want: false},
		{name: "nothing allowed", role: RoleAdmin, want: false},
		{name: "allowed", role: RoleTeacher, allowed: []Role{RoleAdmin, RoleTeacher}, want: true},
		{name: "not allowed", role: RoleStudent, allowed: []Role{RoleAdmin, RoleTeacher}, want: false},
		{name: "unknown role allowed verbatim", role: Role("janitor"), allowed: []Role{"janitor"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthorized(tt.role, tt.allowed))
		})
	}
}

func TestRedirectPath(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{role: RoleStudent, want: "/student"},
		{role: RoleParent, want: "/parent"},
		{role: RoleTeacher, want: "/teacher"},
		{role: RoleAdmin, want: "/admin"},
		{role: Role("janitor"), want: "/"},
		{role: "", want: "/"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, RedirectPath(tt.role))
		})
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Teacher ")
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, role)

	_, ok = ParseRole("janitor")
	assert.False(t, ok)

	assert.True(t, RoleParent.Valid())
	assert.False(t, Role("Parent").Valid())
}
