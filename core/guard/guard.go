package guard

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
)

// Routes the guard redirects to
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Decision is what a guarded page shows.
type Decision int

const (
	Loading Decision = iota
	RedirectLogin
	RedirectUnauthorized
	Render
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case RedirectUnauthorized:
		return "redirect-unauthorized"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Path is the redirect target of the decision, "" if it is not a redirect.
func (d Decision) Path() string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectUnauthorized:
		return UnauthorizedPath
	default:
		return ""
	}
}

// Decide gates a page open to the allowed roles. Nothing but the loading indicator shows while the session is loading.
func Decide(st session.State, allowed []user.Role) Decision {
	switch {
	case st.IsLoading:
		return Loading
	case !st.IsAuthenticated || st.User == nil:
		return RedirectLogin
	case !user.IsAuthorized(st.User.Role, allowed):
		return RedirectUnauthorized
	default:
		return Render
	}
}

type (
	// Navigator performs redirects.
	Navigator interface {
		Navigate(path string)
	}

	NavigatorFunc func(path string)

	// Guard re-evaluates its Decision on every change of the store (or of the allowed roles)
	// and navigates away whenever the decision is a redirect.
	Guard struct {
		store *session.Store
		nav   Navigator

		mutex       sync.Mutex
		allowed     []user.Role
		decision    Decision
		mountOnce   sync.Once
		unsubscribe func()
	}
)

func (f NavigatorFunc) Navigate(path string) { f(path) }

func New(store *session.Store, nav Navigator, allowed ...user.Role) *Guard {
	return &Guard{
		store:    store,
		nav:      nav,
		allowed:  append([]user.Role{}, allowed...),
		decision: Loading,
	}
}

// Mount starts watching the store and checks the session. Only the first call has any effect.
func (g *Guard) Mount(ctx context.Context) {
	g.mountOnce.Do(func() {
		unsubscribe := g.store.Subscribe(g.evaluate)
		g.mutex.Lock()
		g.unsubscribe = unsubscribe
		g.mutex.Unlock()

		g.evaluate(g.store.State())
		g.store.CheckAuth(ctx)
	})
}

// Unmount stops watching the store.
func (g *Guard) Unmount() {
	g.mutex.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mutex.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// SetAllowed changes the allowed roles and re-evaluates.
func (g *Guard) SetAllowed(allowed ...user.Role) {
	g.mutex.Lock()
	g.allowed = append([]user.Role{}, allowed...)
	g.mutex.Unlock()
	g.evaluate(g.store.State())
}

func (g *Guard) Decision() Decision {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.decision
}

func (g *Guard) evaluate(st session.State) {
	g.mutex.Lock()
	d := Decide(st, g.allowed)
	g.decision = d
	g.mutex.Unlock()

	if path := d.Path(); path != "" && g.nav != nil {
		g.nav.Navigate(path)
	}
}
