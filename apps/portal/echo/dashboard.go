package echoportal

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/nav"
	"github.com/trezcool/masomo-portal/core/user"
)

// bulkPages are the admin pages embedding the bulk widget of their entity.
var bulkPages = map[string]bulk.EntityType{
	"/admin/students": bulk.Students,
	"/admin/teachers": bulk.Teachers,
	"/admin/fees":     bulk.Fees,
}

// newDashboardPage lays out a page of role at path: sidebar, title & flashes.
func newDashboardPage(ctx echo.Context, rs *requestState, role user.Role, path, title string) pageData {
	sidebar := nav.NewSidebar(role, path)
	if ctx.QueryParam("sidebar") == "collapsed" {
		sidebar.Toggle()
	}
	data := pageData{
		Title:   title,
		Sidebar: sidebar,
		Links:   sidebar.Links(),
		Flashes: rs.session.flashes(),
	}
	if usr, ok := getContextUser(ctx); ok {
		data.User = &usr
	}
	return data
}

func (s *Server) dashboard(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rs, err := getRequestState(ctx)
		if err != nil {
			return errors.Wrap(err, "getting request state")
		}
		path := ctx.Request().URL.Path
		item, ok := nav.Lookup(role, path)
		if !ok {
			return errHttpNotFound
		}

		data := newDashboardPage(ctx, rs, role, path, item.Name)
		if entity, ok := bulkPages[path]; ok {
			w := s.newWidget(ctx, rs, entity, nil)
			openModal(w, ctx.QueryParam("modal"))
			data.Bulk = newBulkView(w, false)
		}
		return ctx.Render(http.StatusOK, "dashboard.html", data)
	}
}
