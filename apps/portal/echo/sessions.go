package echoportal

import (
	"context"
	"crypto/sha256"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/services/api"
	"github.com/trezcool/masomo-portal/storage/cookie"
)

const (
	sessionIDKey      = "sid"
	contextRequestKey = "portal"
)

type (
	// SessionManager ties a browser to its durable Storage.
	// Without a provider, items live in the (encrypted) session cookie itself;
	// otherwise the cookie only carries a session id naming the provider's namespace.
	SessionManager struct {
		store    sessions.Store
		name     string
		provider core.StorageProvider
	}

	webSession struct {
		cookie  *cookiestore.Storage
		storage core.Storage
		flashed bool
	}

	// requestState holds the per-request collaborators, built by sessionMiddleware.
	requestState struct {
		session *webSession
		client  *api.Client
		store   *session.Store
		expired int32
	}
)

func NewSessionManager(conf core.SessionConfig, secure bool, provider core.StorageProvider) *SessionManager {
	blockKey := sha256.Sum256([]byte(conf.Secret))
	store := sessions.NewCookieStore([]byte(conf.Secret), blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   conf.MaxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(conf.MaxAge)
	return &SessionManager{store: store, name: conf.CookieName, provider: provider}
}

func (m *SessionManager) open(r *http.Request) (*webSession, error) {
	cs, err := cookiestore.Load(m.store, r, m.name)
	if err != nil {
		return nil, err
	}
	ws := &webSession{cookie: cs, storage: cs}
	if m.provider == nil {
		return ws, nil
	}

	sid, err := core.GetToken(r.Context(), cs, sessionIDKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading session id")
	}
	if _, err = uuid.Parse(sid); err != nil {
		sid = uuid.New().String()
		if err = cs.SetItem(r.Context(), sessionIDKey, sid); err != nil {
			return nil, errors.Wrap(err, "setting session id")
		}
	}
	ws.storage = m.provider.Storage(sid)

	// an unusable backend fails the request instead of silently logging the user out
	if _, err = ws.storage.GetItem(r.Context(), core.AccessTokenKey); err != nil && !core.IsNotFound(err) {
		return nil, errors.Wrap(err, "reading session storage")
	}
	return ws, nil
}

func (ws *webSession) addFlash(msg string) {
	ws.cookie.Session().AddFlash(msg)
	ws.flashed = true
}

// flashes pops the pending flash messages.
func (ws *webSession) flashes() []string {
	raw := ws.cookie.Session().Flashes()
	if len(raw) == 0 {
		return nil
	}
	ws.flashed = true
	msgs := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (ws *webSession) save(r *http.Request, w http.ResponseWriter) error {
	if ws.cookie.Dirty() {
		return ws.cookie.Save(r, w)
	}
	if ws.flashed {
		return errors.Wrap(ws.cookie.Session().Save(r, w), "saving session")
	}
	return nil
}

// sessionMiddleware opens the browser session and builds the request-scoped API client and auth store over it.
// The session is written back right before the response headers.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		ws, err := s.deps.Sessions.open(req)
		if err != nil {
			return errors.Wrap(err, "opening session")
		}
		resp := ctx.Response()
		resp.Before(func() {
			if err := ws.save(req, resp.Writer); err != nil {
				s.deps.Logger.Error("saving session", err)
			}
		})

		rs := &requestState{session: ws}
		rs.client = api.New(ws.storage, api.Options{
			BaseURL:   s.deps.Conf.API.BaseURL(),
			Timeout:   s.deps.Conf.API.Timeout,
			Transport: s.deps.Transport,
			Logger:    s.deps.Logger,
			OnSessionExpired: func(context.Context) {
				atomic.StoreInt32(&rs.expired, 1)
			},
		})
		rs.store = session.NewStore(req.Context(), rs.client, ws.storage, s.deps.Logger)
		ctx.Set(contextRequestKey, rs)
		return next(ctx)
	}
}

// sessionExpired reports whether a backend call of this request ended the session.
func (rs *requestState) sessionExpired() bool {
	return atomic.LoadInt32(&rs.expired) == 1
}

func getRequestState(ctx echo.Context) (*requestState, error) {
	if rs, ok := ctx.Get(contextRequestKey).(*requestState); ok {
		return rs, nil
	}
	return nil, errors.New("no session in context")
}
