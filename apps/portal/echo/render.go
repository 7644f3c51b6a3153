package echoportal

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/nav"
	"github.com/trezcool/masomo-portal/core/user"
)

//go:embed templates/*.html
var templatesFS embed.FS

type (
	renderer struct {
		tmpl *template.Template
	}

	// pageData feeds every template; pages only fill what they show.
	pageData struct {
		Title   string
		User    *user.User
		Flashes []string

		// login
		Email       string
		Redirect    string
		Error       string
		FieldErrors map[string]string

		// dashboards
		Sidebar *nav.Sidebar
		Links   []nav.Link
		Bulk    *bulkView

		// errors
		Code    int
		Message string
	}

	bulkView struct {
		Entity    bulk.EntityType
		Label     string
		State     bulk.State
		Formats   []bulk.Format
		Accept    string
		Refreshed bool
	}
)

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
}

func newRenderer() *renderer {
	return &renderer{
		tmpl: template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")),
	}
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}
