package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

type (
	// AuthClient is the part of the backend API the Store relies on.
	AuthClient interface {
		Login(ctx context.Context, email, password string) (core.Tokens, error)
		Me(ctx context.Context) (user.User, error)
	}

	// State is the authentication state. IsAuthenticated implies User != nil.
	State struct {
		User            *user.User
		IsAuthenticated bool
		IsLoading       bool
	}

	Listener func(State)

	subscription struct {
		id int
		fn Listener
	}

	// Store is the single source of truth for who is logged in. Only its own methods mutate it.
	Store struct {
		client    AuthClient
		storage   core.Storage
		persister *Persister
		logger    core.Logger

		writeMutex sync.Mutex // orders state changes with their save & notifications

		mutex     sync.RWMutex
		state     State
		subs      []subscription
		nextSubID int
	}
)

var loggedOut = State{User: nil, IsAuthenticated: false, IsLoading: false}

// NewStore restores the last saved snapshot (user & isAuthenticated) from storage.
// The Store starts loading: CheckAuth must be called to settle it.
func NewStore(ctx context.Context, client AuthClient, storage core.Storage, logger core.Logger) *Store {
	s := &Store{
		client:    client,
		storage:   storage,
		persister: NewPersister(storage),
		logger:    logger,
		state:     State{IsLoading: true},
	}
	snap, err := s.persister.Load(ctx)
	if err != nil {
		logger.Warn("restoring auth snapshot", err)
	} else if snap != nil {
		s.state.User = snap.User
		s.state.IsAuthenticated = snap.IsAuthenticated
	}
	return s
}

func (st State) copy() State {
	if st.User != nil {
		usr := *st.User
		st.User = &usr
	}
	return st
}

// Role returns the role of the current user, "" if there is none.
func (st State) Role() user.Role {
	if st.User == nil {
		return ""
	}
	return st.User.Role
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.copy()
}

// Authorized reports whether the current user's role is one of allowed.
func (s *Store) Authorized(allowed ...user.Role) bool {
	return user.IsAuthorized(s.State().Role(), allowed)
}

// Subscribe registers fn to be called after every state change, in the order of the changes.
// fn must not mutate the store. The returned func unsubscribes.
func (s *Store) Subscribe(fn Listener) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mutex.Lock()
			defer s.mutex.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) set(ctx context.Context, st State) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	s.mutex.Lock()
	s.state = st
	subs := append([]subscription{}, s.subs...)
	s.mutex.Unlock()

	snap := Snapshot{User: st.User, IsAuthenticated: st.IsAuthenticated}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.Error("saving auth snapshot", err)
	}
	for _, sub := range subs {
		sub.fn(st.copy())
	}
}

func (s *Store) authenticated(ctx context.Context, usr user.User) {
	s.set(ctx, State{User: &usr, IsAuthenticated: true, IsLoading: false})
}

// Login exchanges credentials for tokens, persists them, then fetches the user.
// On failure the store settles logged out and the error is returned to the caller.
func (s *Store) Login(ctx context.Context, email, password string) error {
	tokens, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.set(ctx, loggedOut)
		return errors.Wrap(err, "logging in")
	}
	if err = core.StoreTokens(ctx, s.storage, tokens); err != nil {
		s.set(ctx, loggedOut)
		return errors.Wrap(err, "storing tokens")
	}
	usr, err := s.client.Me(ctx)
	if err != nil {
		s.set(ctx, loggedOut)
		return errors.Wrap(err, "fetching user")
	}
	s.authenticated(ctx, usr)
	return nil
}

// Logout clears the tokens and the state. It never fails and makes no server call.
func (s *Store) Logout(ctx context.Context) {
	if err := core.ClearTokens(ctx, s.storage); err != nil {
		s.logger.Error("clearing tokens", err)
	}
	s.set(ctx, loggedOut)
}

// CheckAuth validates the stored session against the backend. It never fails: it only settles the state.
// Without an access token, no request is made.
func (s *Store) CheckAuth(ctx context.Context) {
	token, err := core.GetToken(ctx, s.storage, core.AccessTokenKey)
	if err != nil {
		s.logger.Error("reading access token", err)
	}
	if token == "" {
		s.set(ctx, loggedOut)
		return
	}

	usr, err := s.client.Me(ctx)
	if err != nil {
		s.logger.Debug("session check failed", err)
		if err = core.ClearTokens(ctx, s.storage); err != nil {
			s.logger.Error("clearing tokens", err)
		}
		s.set(ctx, loggedOut)
		return
	}
	s.authenticated(ctx, usr)
}
