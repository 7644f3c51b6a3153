package cookiestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
)

func TestStorage_roundTrip(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))

	// first request: set tokens
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s, err := Load(store, req, "sess")
	require.NoError(t, err)

	_, err = s.GetItem(ctx, core.AccessTokenKey)
	assert.Equal(t, core.ErrNotFound, err)
	assert.False(t, s.Dirty())

	require.NoError(t, core.StoreTokens(ctx, s, core.Tokens{AccessToken: "a", RefreshToken: "r"}))
	assert.True(t, s.Dirty())
	require.NoError(t, s.Save(req, rec))
	assert.False(t, s.Dirty())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sess", cookies[0].Name)

	// second request: read them back
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookies[0])
	s2, err := Load(store, req2, "sess")
	require.NoError(t, err)

	val, err := s2.GetItem(ctx, core.AccessTokenKey)
	assert.NoError(t, err)
	assert.Equal(t, "a", val)

	// unchanged values don't dirty the session
	require.NoError(t, s2.SetItem(ctx, core.AccessTokenKey, "a"))
	assert.False(t, s2.Dirty())
	rec2 := httptest.NewRecorder()
	require.NoError(t, s2.Save(req2, rec2))
	assert.Empty(t, rec2.Result().Cookies())

	require.NoError(t, core.ClearTokens(ctx, s2))
	assert.True(t, s2.Dirty())
	_, err = s2.GetItem(ctx, core.RefreshTokenKey)
	assert.True(t, core.IsNotFound(err))
}

func TestLoad_tamperedCookie(t *testing.T) {
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sess", Value: "lol"})

	s, err := Load(store, req, "sess")
	require.NoError(t, err)
	_, err = s.GetItem(context.Background(), core.AccessTokenKey)
	assert.True(t, core.IsNotFound(err))
}
