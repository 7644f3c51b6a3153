package cookiestore

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

// Storage keeps items inside a gorilla session (a signed & encrypted cookie when backed by a sessions.CookieStore).
// Changes are only sent back to the client by Save.
type Storage struct {
	sess  *sessions.Session
	mutex sync.Mutex
	dirty bool
}

var _ core.Storage = (*Storage)(nil)

func New(sess *sessions.Session) *Storage {
	return &Storage{sess: sess}
}

// Session returns the underlying gorilla session (e.g. for flash messages).
func (s *Storage) Session() *sessions.Session {
	return s.sess
}

// Load fetches (or starts) the named session of r.
func Load(store sessions.Store, r *http.Request, name string) (*Storage, error) {
	sess, err := store.Get(r, name)
	if err != nil && sess == nil {
		return nil, errors.Wrap(err, "loading session")
	}
	// a tampered or expired cookie yields a fresh session: carry on with it
	return New(sess), nil
}

func (s *Storage) GetItem(_ context.Context, key string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if val, ok := s.sess.Values[key].(string); ok {
		return val, nil
	}
	return "", core.ErrNotFound
}

func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if cur, ok := s.sess.Values[key].(string); !ok || cur != value {
		s.sess.Values[key] = value
		s.dirty = true
	}
	return nil
}

func (s *Storage) RemoveItem(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.sess.Values[key]; ok {
		delete(s.sess.Values, key)
		s.dirty = true
	}
	return nil
}

// Dirty reports whether there are unsaved changes.
func (s *Storage) Dirty() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dirty
}

// Save writes the session to the response if it changed. It must run before the response headers are written.
func (s *Storage) Save(r *http.Request, w http.ResponseWriter) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.sess.Save(r, w); err != nil {
		return errors.Wrap(err, "saving session")
	}
	s.dirty = false
	return nil
}
