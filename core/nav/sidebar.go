package nav

import (
	"context"

	"github.com/trezcool/masomo-portal/core/user"
)

// PublicPath is where users land after logging out from the sidebar.
const PublicPath = "/"

type (
	// Link is an Item as rendered in the sidebar.
	Link struct {
		Item
		Active bool
	}

	// LogoutFunc ends the session (see session.Store.Logout).
	LogoutFunc func(ctx context.Context)

	// Sidebar renders the links of a role. Collapsed only affects presentation.
	Sidebar struct {
		Role      user.Role
		Path      string
		Collapsed bool
	}
)

func NewSidebar(role user.Role, path string) *Sidebar {
	return &Sidebar{Role: role, Path: path}
}

func (s *Sidebar) Toggle() {
	s.Collapsed = !s.Collapsed
}

// Links returns the role's items, flagging the one matching the current path.
func (s *Sidebar) Links() []Link {
	items := roleTable[s.Role]
	links := make([]Link, 0, len(items))
	for _, it := range items {
		links = append(links, Link{Item: it, Active: it.Href == s.Path})
	}
	return links
}

// Logout ends the session and returns the public route to send the user to.
func (s *Sidebar) Logout(ctx context.Context, logout LogoutFunc) string {
	logout(ctx)
	return PublicPath
}
