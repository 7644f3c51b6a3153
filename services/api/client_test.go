package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/storage/inmem"
	"github.com/trezcool/masomo-portal/tests"
)

const (
	adminEmail = "admin@test.cd"
	pwd        = "pwd"
)

type env struct {
	backend *testutil.Backend
	storage core.Storage
	client  *Client
	expired int32
}

func setup(t *testing.T) *env {
	e := &env{
		backend: testutil.NewBackend(t),
		storage: inmemstore.New(),
	}
	testutil.CreateUser(t, e.backend, adminEmail, pwd, user.RoleAdmin, true)
	e.client = New(e.storage, Options{
		BaseURL: e.backend.URL,
		Timeout: 5 * time.Second,
		Logger:  new(testutil.Logger),
		OnSessionExpired: func(context.Context) {
			atomic.AddInt32(&e.expired, 1)
		},
	})
	return e
}

func (e *env) expiredCount() int { return int(atomic.LoadInt32(&e.expired)) }

func (e *env) token(t *testing.T, key string) string {
	tok, err := core.GetToken(context.Background(), e.storage, key)
	require.NoError(t, err)
	return tok
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.CreateUser(t, e.backend, "off@test.cd", pwd, user.RoleTeacher, false)

	tests := []struct {
		name       string
		email      string
		pwd        string
		wantStatus int
		wantDetail string
	}{
		{name: "unknown email", email: "lol@test.cd", pwd: pwd, wantStatus: http.StatusUnauthorized, wantDetail: testutil.DetailBadCredentials},
		{name: "wrong password", email: adminEmail, pwd: "lol", wantStatus: http.StatusUnauthorized, wantDetail: testutil.DetailBadCredentials},
		{name: "disabled account", email: "off@test.cd", pwd: pwd, wantStatus: http.StatusBadRequest, wantDetail: testutil.DetailDisabled},
		{name: "success", email: adminEmail, pwd: pwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := e.client.Login(ctx, tt.email, tt.pwd)
			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, StatusCode(err))
				assert.Equal(t, tt.wantDetail, err.Error())
				assert.False(t, IsSessionExpired(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tokens.AccessToken)
			assert.NotEmpty(t, tokens.RefreshToken)
		})
	}

	// bad credentials never trigger a refresh
	assert.Equal(t, 0, e.backend.Hits(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 0, e.expiredCount())
}

func TestClient_Me(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)

	usr, err := e.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, usr.Email)
	assert.Equal(t, user.RoleAdmin, usr.Role)
	assert.True(t, usr.IsActive)
	assert.Equal(t, 0, e.backend.Hits(http.MethodPost, "/auth/refresh"))
}

func TestClient_refreshAndRetry(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	orig := testutil.LogIn(t, e.backend, e.storage, adminEmail)
	e.backend.ExpireAccessTokens()

	usr, err := e.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, usr.Email)

	assert.Equal(t, 1, e.backend.Hits(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 2, e.backend.Hits(http.MethodGet, "/auth/me"))
	assert.Equal(t, 0, e.expiredCount())

	// both tokens were replaced
	assert.NotEqual(t, orig.AccessToken, e.token(t, core.AccessTokenKey))
	assert.NotEqual(t, orig.RefreshToken, e.token(t, core.RefreshTokenKey))
	assert.NotEmpty(t, e.token(t, core.AccessTokenKey))
}

func TestClient_refreshFails(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)
	e.backend.ExpireAccessTokens()
	e.backend.FailRefresh(true)

	_, err := e.client.Me(ctx)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.True(t, IsSessionExpired(err))
	assert.Equal(t, testutil.DetailBadToken, err.Error())

	assert.Equal(t, 1, e.backend.Hits(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 1, e.backend.Hits(http.MethodGet, "/auth/me"))
	assert.Empty(t, e.token(t, core.AccessTokenKey))
	assert.Empty(t, e.token(t, core.RefreshTokenKey))
	assert.Equal(t, 1, e.expiredCount())
}

func TestClient_retriedRequestRejected(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)
	e.backend.RejectAllAccess(true)

	_, err := e.client.Me(ctx)
	require.Error(t, err)
	assert.True(t, IsSessionExpired(err))

	// refreshed once, retried once, never again
	assert.Equal(t, 1, e.backend.Hits(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 2, e.backend.Hits(http.MethodGet, "/auth/me"))
	assert.Empty(t, e.token(t, core.AccessTokenKey))
	assert.Empty(t, e.token(t, core.RefreshTokenKey))
	assert.Equal(t, 1, e.expiredCount())
}

func TestClient_noTokens(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.client.Me(ctx)
	require.Error(t, err)
	assert.True(t, IsSessionExpired(err))
	assert.Equal(t, 0, e.backend.Hits(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 1, e.expiredCount())
}

func TestClient_concurrentRefresh(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)
	e.backend.ExpireAccessTokens()

	n := 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.client.Me(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	refreshes := e.backend.Hits(http.MethodPost, "/auth/refresh")
	assert.True(t, refreshes >= 1 && refreshes <= n)
	assert.Equal(t, 0, e.expiredCount())
}

func TestClient_bulk(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)

	data, err := e.client.Template(ctx, bulk.Students, bulk.CSV)
	require.NoError(t, err)
	assert.Equal(t, testutil.FileContent("template", "students", bulk.CSV), data)

	data, err = e.client.Export(ctx, bulk.Attendance, bulk.XLSX)
	require.NoError(t, err)
	assert.Equal(t, testutil.FileContent("export", "attendance", bulk.XLSX), data)

	_, err = e.client.Template(ctx, bulk.Attendance, bulk.CSV)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	want := bulk.ImportResult{Success: 3, Failed: 1, Errors: []string{"row 4: missing email"}}
	e.backend.SetImportResult(want)
	res, err := e.client.Import(ctx, bulk.Teachers, "teachers.csv", strings.NewReader("email\na@b.c\n"))
	require.NoError(t, err)
	assert.Equal(t, want, res)

	_, err = e.client.Import(ctx, bulk.Teachers, "teachers.docx", strings.NewReader("lol"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, testutil.DetailBadFileType, err.(*APIError).ErrorDetail())
}

func TestClient_importReplayedAfterRefresh(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.LogIn(t, e.backend, e.storage, adminEmail)
	e.backend.ExpireAccessTokens()
	e.backend.SetImportResult(bulk.ImportResult{Success: 1, Errors: []string{}})

	res, err := e.client.Import(ctx, bulk.Fees, "fees.csv", strings.NewReader("amount\n100\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)

	imports := e.backend.Imports()
	require.Len(t, imports, 1)
	assert.Equal(t, "fees", imports[0].Entity)
	assert.Equal(t, "fees.csv", imports[0].Filename)
	assert.Equal(t, "amount\n100\n", imports[0].Content)
	assert.Equal(t, 2, e.backend.Hits(http.MethodPost, "/bulk/import/fees"))
}

func TestClient_forbidden(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.CreateUser(t, e.backend, "t@test.cd", pwd, user.RoleTeacher, true)
	testutil.LogIn(t, e.backend, e.storage, "t@test.cd")

	_, err := e.client.Export(ctx, bulk.Students, bulk.CSV)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
	assert.Equal(t, testutil.DetailForbidden, err.Error())
	assert.NotEmpty(t, e.token(t, core.AccessTokenKey))
}

func TestClient_transportError(t *testing.T) {
	e := setup(t)
	c := New(e.storage, Options{BaseURL: "http://127.0.0.1:1/api/v1", Timeout: time.Second})

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func Test_parseDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string detail", body: `{"detail": "Incorrect email or password"}`, want: "Incorrect email or password"},
		{name: "validation list", body: `{"detail": [{"loc": ["body"], "msg": "field required"}, {"msg": "bad"}]}`, want: "field required; bad"},
		{name: "error payload", body: `{"error": "boom"}`, want: "boom"},
		{name: "object detail", body: `{"detail": {"code": 1}}`, want: `{"code": 1}`},
		{name: "not json", body: `<html>`, want: ""},
		{name: "empty object", body: `{}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDetail([]byte(tt.body)))
		})
	}
}
