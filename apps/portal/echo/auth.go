package echoportal

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/guard"
	"github.com/trezcool/masomo-portal/core/nav"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/api"
)

const msgLoginFailed = "Invalid email or password"

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
	Redirect string `form:"redirect"`
}

// localPath keeps post-login redirects on this site.
func localPath(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return ""
	}
	return path
}

func landingPath(redirect string, role user.Role) string {
	if path := localPath(redirect); path != "" {
		return path
	}
	return user.RedirectPath(role)
}

func (s *Server) home(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	rs.store.CheckAuth(ctx.Request().Context())
	if st := rs.store.State(); st.IsAuthenticated && st.User != nil {
		return ctx.Redirect(http.StatusFound, user.RedirectPath(st.User.Role))
	}
	return ctx.Redirect(http.StatusFound, guard.LoginPath)
}

func (s *Server) loginPage(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	redirect := localPath(ctx.QueryParam("redirect"))

	rs.store.CheckAuth(ctx.Request().Context())
	if st := rs.store.State(); st.IsAuthenticated && st.User != nil {
		return ctx.Redirect(http.StatusFound, landingPath(redirect, st.User.Role))
	}
	return ctx.Render(http.StatusOK, "login.html", pageData{
		Title:    "Login",
		Redirect: redirect,
		Flashes:  rs.session.flashes(),
	})
}

func (s *Server) login(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}

	var form loginForm
	if err = ctx.Bind(&form); err != nil {
		return errHttpBadRequest
	}
	form.Email = core.CleanString(form.Email, true /* lower */)
	form.Redirect = localPath(form.Redirect)
	data := pageData{Title: "Login", Email: form.Email, Redirect: form.Redirect}

	if err = core.ValidateStruct(s.deps.Validate, s.deps.Translator, form); err != nil {
		if vErr, ok := errors.Cause(err).(*core.ValidationError); ok {
			data.FieldErrors = vErr.FieldErrors()
			return ctx.Render(http.StatusBadRequest, "login.html", data)
		}
		return err
	}

	if err = rs.store.Login(ctx.Request().Context(), form.Email, form.Password); err != nil {
		code := api.StatusCode(err)
		if code == 0 {
			s.deps.Logger.Error("logging in", err)
			code = http.StatusBadGateway
		}
		data.Error = msgLoginFailed
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			data.Error = apiErr.Detail
		}
		return ctx.Render(code, "login.html", data)
	}

	st := rs.store.State()
	return ctx.Redirect(http.StatusFound, landingPath(form.Redirect, st.Role()))
}

func (s *Server) logout(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	sidebar := nav.NewSidebar(rs.store.State().Role(), ctx.Request().URL.Path)
	return ctx.Redirect(http.StatusFound, sidebar.Logout(ctx.Request().Context(), rs.store.Logout))
}

func (s *Server) unauthorized(ctx echo.Context) error {
	return ctx.Render(http.StatusForbidden, "unauthorized.html", pageData{Title: "Access Denied"})
}
