package echoportal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/guard"
	"github.com/trezcool/masomo-portal/core/user"
)

type (
	// responseDownloader streams downloads as attachments of the current response.
	responseDownloader struct {
		ctx echo.Context
	}

	bulkHandlers struct {
		s *Server
	}
)

func (d responseDownloader) Save(_ context.Context, dl bulk.Download) error {
	d.ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
	return d.ctx.Blob(http.StatusOK, dl.ContentType, dl.Data)
}

func registerBulkRoutes(g *echo.Group, s *Server) {
	h := bulkHandlers{s: s}
	g.GET("/bulk/:entity", h.page)
	g.GET("/bulk/:entity/template", h.template)
	g.GET("/bulk/:entity/export", h.export)
	g.POST("/bulk/:entity/import", h.importFile)
}

// newWidget returns a widget whose alerts become flash messages.
func (s *Server) newWidget(ctx echo.Context, rs *requestState, entity bulk.EntityType, onImportSuccess func()) *bulk.Widget {
	alerter := bulk.AlertFunc(rs.session.addFlash)
	return bulk.New(entity, rs.client, responseDownloader{ctx: ctx}, alerter, onImportSuccess)
}

func openModal(w *bulk.Widget, modal string) {
	switch modal {
	case "import":
		w.OpenImport()
	case "export":
		w.OpenExport()
	}
}

func newBulkView(w *bulk.Widget, refreshed bool) *bulkView {
	return &bulkView{
		Entity:    w.Entity(),
		Label:     w.Entity().Label(),
		State:     w.State(),
		Formats:   []bulk.Format{bulk.XLSX, bulk.CSV},
		Accept:    strings.Join(bulk.ImportExts, ","),
		Refreshed: refreshed,
	}
}

func bulkPath(entity bulk.EntityType) string {
	return user.RoleAdmin.Path() + "/bulk/" + string(entity)
}

func parseBulkParams(ctx echo.Context, withFormat bool) (bulk.EntityType, bulk.Format, error) {
	entity, err := bulk.ParseEntityType(ctx.Param("entity"))
	if err != nil {
		return "", "", errHttpNotFound
	}
	if !withFormat {
		return entity, "", nil
	}
	format, err := bulk.ParseFormat(ctx.QueryParam("format"))
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "format must be csv or xlsx")
	}
	return entity, format, nil
}

// afterFailure sends the user back to the widget, with its alert flashed, or to the login page if the session is gone.
func (h bulkHandlers) afterFailure(ctx echo.Context, rs *requestState, entity bulk.EntityType, modal string) error {
	if rs.sessionExpired() {
		rs.store.Logout(ctx.Request().Context())
		return ctx.Redirect(http.StatusFound, guard.LoginPath)
	}
	return ctx.Redirect(http.StatusFound, bulkPath(entity)+"?modal="+modal)
}

func (h bulkHandlers) page(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	entity, _, err := parseBulkParams(ctx, false)
	if err != nil {
		return err
	}

	w := h.s.newWidget(ctx, rs, entity, nil)
	openModal(w, ctx.QueryParam("modal"))
	data := newDashboardPage(ctx, rs, user.RoleAdmin, ctx.Request().URL.Path, entity.Label())
	data.Bulk = newBulkView(w, false)
	return ctx.Render(http.StatusOK, "dashboard.html", data)
}

func (h bulkHandlers) template(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	entity, format, err := parseBulkParams(ctx, true)
	if err != nil {
		return err
	}

	w := h.s.newWidget(ctx, rs, entity, nil)
	w.OpenImport()
	if err = w.DownloadTemplate(ctx.Request().Context(), format); err != nil {
		h.s.deps.Logger.Debug("template download failed", err)
		return h.afterFailure(ctx, rs, entity, "import")
	}
	return nil
}

func (h bulkHandlers) export(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	entity, format, err := parseBulkParams(ctx, true)
	if err != nil {
		return err
	}

	w := h.s.newWidget(ctx, rs, entity, nil)
	w.OpenExport()
	if err = w.ExportAll(ctx.Request().Context(), format); err != nil {
		h.s.deps.Logger.Debug("export failed", err)
		return h.afterFailure(ctx, rs, entity, "export")
	}
	return nil
}

func (h bulkHandlers) importFile(ctx echo.Context) error {
	rs, err := getRequestState(ctx)
	if err != nil {
		return errors.Wrap(err, "getting request state")
	}
	entity, _, err := parseBulkParams(ctx, false)
	if err != nil {
		return err
	}

	var refreshed bool
	w := h.s.newWidget(ctx, rs, entity, func() { refreshed = true })
	w.OpenImport()

	file := bulk.File{}
	if fh, fErr := ctx.FormFile("file"); fErr == nil {
		f, oErr := fh.Open()
		if oErr != nil {
			return errors.Wrap(oErr, "opening uploaded file")
		}
		defer f.Close()
		file = bulk.File{Name: fh.Filename, Reader: f}
	}

	code := http.StatusOK
	if file.Name == "" { // nothing selected
		rs.session.addFlash(bulk.MsgInvalidFile)
		code = http.StatusBadRequest
	} else if _, err = w.SelectFile(ctx.Request().Context(), file); err != nil {
		if errors.Cause(err) != bulk.ErrInvalidFile {
			return errors.Wrap(err, "importing file")
		}
		code = http.StatusBadRequest
	}
	if rs.sessionExpired() {
		rs.store.Logout(ctx.Request().Context())
		return ctx.Redirect(http.StatusFound, guard.LoginPath)
	}

	path := bulkPath(entity)
	data := newDashboardPage(ctx, rs, user.RoleAdmin, path, entity.Label())
	data.Bulk = newBulkView(w, refreshed)
	return ctx.Render(code, "dashboard.html", data)
}
