package echoportal

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	errHttpBadRequest  = echo.NewHTTPError(http.StatusBadRequest, "bad request")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "not found")
	errHttpUnavailable = echo.NewHTTPError(http.StatusServiceUnavailable, "session not ready, try again")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Browsers get an error page, API consumers get JSON.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.ValidationError:
			if origErr.Fields != nil {
				message = origErr.FieldErrors()
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr *user.User
			if rs, rErr := getRequestState(ctx); rErr == nil {
				usr = rs.store.State().User
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			switch {
			case ctx.Request().Method == http.MethodHead: // Issue #608
				err = ctx.NoContent(code)
			case wantsJSON(ctx.Request()):
				if m, ok := message.(string); ok {
					message = echo.Map{"error": m}
				}
				err = ctx.JSON(code, message)
			default:
				err = ctx.Render(code, "error.html", pageData{
					Title:   http.StatusText(code),
					Code:    code,
					Message: errorText(message),
				})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

func errorText(message interface{}) string {
	switch m := message.(type) {
	case string:
		return m
	case map[string]string:
		flds := make([]string, 0, len(m))
		for fld := range m {
			flds = append(flds, fld)
		}
		sort.Strings(flds)
		parts := make([]string, 0, len(m))
		for _, fld := range flds {
			parts = append(parts, fld+": "+m[fld])
		}
		return strings.Join(parts, "; ")
	case error:
		return m.Error()
	default:
		return http.StatusText(http.StatusInternalServerError)
	}
}
