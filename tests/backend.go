package testutil

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/user"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	DetailBadCredentials = "Incorrect email or password"
	DetailDisabled       = "User account is disabled"
	DetailBadToken       = "Could not validate credentials"
	DetailBadRefresh     = "Invalid refresh token"
	DetailForbidden      = "Not enough permissions"
	DetailBadFileType    = "File must be CSV or Excel format"
)

type (
	// Claims represents the authorization claims transmitted via a JWT.
	Claims struct {
		jwt.StandardClaims
		Type string `json:"type"`
		Seq  int    `json:"seq"`
	}

	account struct {
		usr          user.User
		passwordHash []byte
	}

	// ImportCall records one upload received by the Backend.
	ImportCall struct {
		Entity   string
		Filename string
		Content  string
	}

	// Backend is an in-process stand-in for the school API (/api/v1), with switchable failures.
	Backend struct {
		URL string // base URL, /api/v1 included

		server *httptest.Server
		secret []byte

		mutex        sync.Mutex
		accounts     map[string]*account // by email
		pkCount      int
		seq          int
		minAccessSeq int
		hits         map[string]int
		rejectAccess bool
		failRefresh  bool
		bulkStatus   int
		bulkDetail   string
		importResult bulk.ImportResult
		imports      []ImportCall
		delay        time.Duration
	}
)

// NewBackend starts a Backend, stopped when the test ends.
func NewBackend(t *testing.T) *Backend {
	b := &Backend{
		secret:       []byte(uuid.NewString()),
		accounts:     make(map[string]*account),
		hits:         make(map[string]int),
		importResult: bulk.ImportResult{Errors: []string{}},
	}

	app := echo.New()
	app.HideBanner = true
	app.HTTPErrorHandler = detailErrorHandler
	app.Use(b.countHits)

	v1 := app.Group("/api/v1")
	v1.POST("/auth/login", b.login)
	v1.POST("/auth/refresh", b.refresh)
	v1.GET("/auth/me", b.me, b.authenticated)

	bulkGroup := v1.Group("/bulk", b.authenticated, b.adminOnly, b.bulkFailures)
	bulkGroup.GET("/template/:entity", b.template)
	bulkGroup.GET("/export/:entity", b.export)
	bulkGroup.POST("/import/:entity", b.importFile)

	b.server = httptest.NewServer(app)
	b.URL = b.server.URL + "/api/v1"
	t.Cleanup(b.server.Close)
	return b
}

// Origin is the server root, without /api/v1.
func (b *Backend) Origin() string { return b.server.URL }

// detailErrorHandler renders errors the way the real backend does: {"detail": msg}.
func detailErrorHandler(err error, ctx echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	if herr, ok := errors.Cause(err).(*echo.HTTPError); ok {
		code = herr.Code
		if m, ok := herr.Message.(string); ok {
			msg = m
		}
	}
	if !ctx.Response().Committed {
		_ = ctx.JSON(code, echo.Map{"detail": msg})
	}
}

func hitKey(method, path string) string {
	return method + " " + path
}

func (b *Backend) countHits(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		b.mutex.Lock()
		b.hits[hitKey(ctx.Request().Method, strings.TrimPrefix(ctx.Request().URL.Path, "/api/v1"))]++
		delay := b.delay
		b.mutex.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		return next(ctx)
	}
}

// Hits returns how many requests were made to path (relative to /api/v1).
func (b *Backend) Hits(method, path string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.hits[hitKey(method, path)]
}

// TotalHits returns how many requests the Backend received.
func (b *Backend) TotalHits() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var n int
	for _, h := range b.hits {
		n += h
	}
	return n
}

// AddUser registers an account.
func (b *Backend) AddUser(email, pwd string, role user.Role, isActive bool, createdAt time.Time) (user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
	if err != nil {
		return user.User{}, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.pkCount++
	usr := user.User{
		ID:        b.pkCount,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: createdAt.UTC().Truncate(time.Second),
	}
	b.accounts[email] = &account{usr: usr, passwordHash: hash}
	return usr, nil
}

// ExpireAccessTokens makes every access token issued so far invalid; refresh tokens keep working.
func (b *Backend) ExpireAccessTokens() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.minAccessSeq = b.seq + 1
}

// RejectAllAccess makes every access token invalid, including those issued later.
func (b *Backend) RejectAllAccess(reject bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.rejectAccess = reject
}

// FailRefresh makes /auth/refresh reject every refresh token.
func (b *Backend) FailRefresh(fail bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failRefresh = fail
}

// FailBulk makes every bulk endpoint answer status with detail (no detail payload if empty). 0 disables.
func (b *Backend) FailBulk(status int, detail string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.bulkStatus = status
	b.bulkDetail = detail
}

// SetImportResult sets the result of the next imports.
func (b *Backend) SetImportResult(res bulk.ImportResult) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.importResult = res
}

// SetDelay slows every request down.
func (b *Backend) SetDelay(d time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.delay = d
}

// Imports returns the uploads received so far.
func (b *Backend) Imports() []ImportCall {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]ImportCall{}, b.imports...)
}

// IssueTokens returns a fresh token pair for the account of email.
func (b *Backend) IssueTokens(email string) (core.Tokens, error) {
	b.mutex.Lock()
	acc, ok := b.accounts[email]
	b.mutex.Unlock()
	if !ok {
		return core.Tokens{}, errors.Errorf("no account for %q", email)
	}
	return b.issue(acc.usr)
}

func (b *Backend) sign(usr user.User, typ string, ttl time.Duration, seq int) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   usr.Email,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Type: typ,
		Seq:  seq,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(b.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (b *Backend) issue(usr user.User) (core.Tokens, error) {
	b.mutex.Lock()
	b.seq++
	seq := b.seq
	b.mutex.Unlock()

	access, err := b.sign(usr, tokenTypeAccess, 30*time.Minute, seq)
	if err != nil {
		return core.Tokens{}, err
	}
	refresh, err := b.sign(usr, tokenTypeRefresh, 7*24*time.Hour, seq)
	if err != nil {
		return core.Tokens{}, err
	}
	return core.Tokens{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (b *Backend) parse(tokenStr, typ string) (*account, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return b.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, errors.New("wrong token type")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if typ == tokenTypeAccess && (b.rejectAccess || claims.Seq < b.minAccessSeq) {
		return nil, errors.New("token revoked")
	}
	acc, ok := b.accounts[claims.Subject]
	if !ok {
		return nil, errors.New("user not found")
	}
	return acc, nil
}

func (b *Backend) login(ctx echo.Context) error {
	email := ctx.FormValue("username")
	pwd := ctx.FormValue("password")

	b.mutex.Lock()
	acc, ok := b.accounts[email]
	b.mutex.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(pwd)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, DetailBadCredentials)
	}
	if !acc.usr.IsActive {
		return echo.NewHTTPError(http.StatusBadRequest, DetailDisabled)
	}

	tokens, err := b.issue(acc.usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (b *Backend) refresh(ctx echo.Context) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := ctx.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body")
	}

	b.mutex.Lock()
	fail := b.failRefresh
	b.mutex.Unlock()

	acc, err := b.parse(body.RefreshToken, tokenTypeRefresh)
	if fail || err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, DetailBadRefresh)
	}
	tokens, err := b.issue(acc.usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tokens)
}

const contextUserKey = "user"

func (b *Backend) authenticated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		auth := ctx.Request().Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
		}
		acc, err := b.parse(strings.TrimPrefix(auth, "Bearer "), tokenTypeAccess)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, DetailBadToken)
		}
		ctx.Set(contextUserKey, acc.usr)
		return next(ctx)
	}
}

func (b *Backend) adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if usr, ok := ctx.Get(contextUserKey).(user.User); ok && usr.Role == user.RoleAdmin {
			return next(ctx)
		}
		return echo.NewHTTPError(http.StatusForbidden, DetailForbidden)
	}
}

func (b *Backend) bulkFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		b.mutex.Lock()
		status, detail := b.bulkStatus, b.bulkDetail
		b.mutex.Unlock()
		switch {
		case status == 0:
			return next(ctx)
		case detail == "":
			return ctx.NoContent(status)
		default:
			return echo.NewHTTPError(status, detail)
		}
	}
}

func (b *Backend) me(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextUserKey))
}

// FileContent is the body served for entity in format.
func FileContent(kind, entity string, format bulk.Format) []byte {
	if format == bulk.XLSX {
		return []byte("PK\x03\x04" + kind + ":" + entity)
	}
	return []byte(kind + "," + entity + "\n")
}

func (b *Backend) serveFile(ctx echo.Context, kind string, entities ...bulk.EntityType) error {
	entity, err := bulk.ParseEntityType(ctx.Param("entity"))
	if err != nil || !containsEntity(entities, entity) {
		return echo.NewHTTPError(http.StatusNotFound, "Not Found")
	}
	format := bulk.CSV
	if ctx.QueryParam("format") == string(bulk.XLSX) {
		format = bulk.XLSX
	}
	return ctx.Blob(http.StatusOK, format.ContentType(), FileContent(kind, string(entity), format))
}

func (b *Backend) template(ctx echo.Context) error {
	return b.serveFile(ctx, "template", bulk.Students, bulk.Teachers, bulk.Fees)
}

func (b *Backend) export(ctx echo.Context) error {
	return b.serveFile(ctx, "export", bulk.AllEntityTypes...)
}

func (b *Backend) importFile(ctx echo.Context) error {
	entity, err := bulk.ParseEntityType(ctx.Param("entity"))
	if err != nil || !entity.SupportsImport() {
		return echo.NewHTTPError(http.StatusNotFound, "Not Found")
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "field required")
	}
	switch filepath.Ext(fh.Filename) {
	case ".csv", ".xlsx", ".xls":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, DetailBadFileType)
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := ioutil.ReadAll(f)
	if err != nil {
		return err
	}

	b.mutex.Lock()
	b.imports = append(b.imports, ImportCall{Entity: string(entity), Filename: fh.Filename, Content: string(content)})
	res := b.importResult
	b.mutex.Unlock()
	return ctx.JSON(http.StatusOK, res)
}

func containsEntity(entities []bulk.EntityType, et bulk.EntityType) bool {
	for _, e := range entities {
		if e == et {
			return true
		}
	}
	return false
}
