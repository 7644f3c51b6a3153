package echoportal

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/guard"
	"github.com/trezcool/masomo-portal/core/user"
)

const contextUserKey = "user"

// guardMiddleware lets through the users of the allowed roles only, after validating their session.
func (s *Server) guardMiddleware(allowed ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			rs, err := getRequestState(ctx)
			if err != nil {
				return errors.Wrap(err, "getting request state")
			}

			var redirect string
			g := guard.New(rs.store, guard.NavigatorFunc(func(path string) { redirect = path }), allowed...)
			g.Mount(ctx.Request().Context())
			g.Unmount()

			switch g.Decision() {
			case guard.Render:
				ctx.Set(contextUserKey, *rs.store.State().User)
				return next(ctx)
			case guard.Loading:
				return errHttpUnavailable
			default:
				return ctx.Redirect(http.StatusFound, redirect)
			}
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}
