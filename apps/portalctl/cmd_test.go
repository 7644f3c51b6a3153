package main

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/storage/file"
	"github.com/trezcool/masomo-portal/tests"
)

const (
	adminEmail   = "admin@test.cd"
	teacherEmail = "teacher@test.cd"
	pwd          = "demo123"
)

type env struct {
	backend *testutil.Backend
	conf    *core.Config
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func setup(t *testing.T) *env {
	e := &env{
		backend: testutil.NewBackend(t),
		stdout:  new(bytes.Buffer),
		stderr:  new(bytes.Buffer),
	}
	testutil.CreateUser(t, e.backend, adminEmail, pwd, user.RoleAdmin, true)
	testutil.CreateUser(t, e.backend, teacherEmail, pwd, user.RoleTeacher, true)
	e.conf = &core.Config{
		API: core.APIConfig{URL: e.backend.Origin(), Timeout: 5 * time.Second},
		CLI: core.CLIConfig{StateDir: t.TempDir()},
	}
	return e
}

// newCLI starts a fresh process: only the state file is shared between runs.
func (e *env) newCLI() *commandLine {
	e.stdout.Reset()
	e.stderr.Reset()
	return newCommandLine(e.conf, new(testutil.Logger), e.stdout, e.stderr)
}

func (e *env) logIn(t *testing.T, email string) {
	testutil.LogIn(t, e.backend, filestore.New(filepath.Join(e.conf.CLI.StateDir, stateFile)), email)
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (e *env) runTests(t *testing.T, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		args := append([]string{"portalctl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := e.newCLI().run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
			}
			if check != nil {
				check(t, tt)
			}
		})
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_help(t *testing.T) {
	e := setup(t)
	mockPassword(t, "")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "help flag", args: []string{"nav", "-h"}, wantErr: errHelp},
		{name: "login: no email", args: []string{"login"}, wantErr: errHelp},
		{name: "login: no password", args: []string{"login", "-email", adminEmail}, wantErr: errHelp},
		{name: "template: no entity", args: []string{"template", "-format", "csv"}, wantErr: errHelp},
		{name: "export: no entity", args: []string{"export"}, wantErr: errHelp},
		{name: "import: no file", args: []string{"import", "-entity", "students"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"nav", "-lol"}, wantErr: errHelp},
		{name: "whoami ignores args", args: []string{"whoami", "-lol"}, wantErr: errNotLoggedIn},
	}
	e.runTests(t, tests, nil)
	assert.Equal(t, 0, e.backend.TotalHits())
}

func Test_commandLine_login(t *testing.T) {
	e := setup(t)

	type extra struct {
		pwd        string
		wantStdout string
	}
	tests := []cliTest{
		{
			name: "not logged in", args: []string{"whoami"}, wantErr: errNotLoggedIn,
		},
		{
			name: "invalid email", args: []string{"login", "-email", "lol"}, extra: extra{pwd: pwd},
			wantErrStr: "email: enter a valid email address",
		},
		{
			name: "bad password", args: []string{"login", "-email", adminEmail}, extra: extra{pwd: "lol"},
			wantErrStr: "logging in: " + testutil.DetailBadCredentials,
		},
		{
			name: "login", args: []string{"login", "-email", " Admin@Test.cd "}, extra: extra{pwd: pwd},
		},
		{
			name: "whoami", args: []string{"whoami"}, extra: extra{wantStdout: "admin@test.cd (admin)\n"},
		},
		{
			name: "nav", args: []string{"nav", "-path", "/admin/fees"},
		},
		{
			name: "logout", args: []string{"logout"}, extra: extra{wantStdout: "Logged out\n"},
		},
		{
			name: "logged out", args: []string{"whoami"}, wantErr: errNotLoggedIn,
		},
	}
	for _, tt := range tests {
		if x, ok := tt.extra.(extra); ok && x.pwd != "" {
			mockPassword(t, x.pwd)
		}
		e.runTests(t, []cliTest{tt}, func(t *testing.T, tt cliTest) {
			if x, ok := tt.extra.(extra); ok && x.wantStdout != "" {
				assert.Equal(t, x.wantStdout, e.stdout.String())
			}
		})
		switch tt.name {
		case "login":
			assert.Contains(t, e.stdout.String(), "Logged in as admin@test.cd (admin)\n")
		case "nav":
			assert.Contains(t, e.stdout.String(), "  Dashboard    /admin\n")
			assert.Contains(t, e.stdout.String(), "* Fees         /admin/fees\n")
		}
	}
}

func Test_commandLine_stateFile(t *testing.T) {
	e := setup(t)
	mockPassword(t, pwd)
	require.NoError(t, e.newCLI().run([]string{"portalctl", "login", "-email", teacherEmail}))

	data, err := ioutil.ReadFile(filepath.Join(e.conf.CLI.StateDir, stateFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), core.AccessTokenKey)
	assert.Contains(t, string(data), core.RefreshTokenKey)
	assert.Contains(t, string(data), core.AuthSnapshotKey)

	fi, err := os.Stat(filepath.Join(e.conf.CLI.StateDir, stateFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, e.newCLI().run([]string{"portalctl", "nav"}))
	assert.Contains(t, e.stdout.String(), "* Dashboard    /teacher\n")
	assert.Contains(t, e.stdout.String(), "  Marks Entry  /teacher/marks\n")
}

func Test_commandLine_sessionExpired(t *testing.T) {
	e := setup(t)
	e.logIn(t, adminEmail)
	e.backend.ExpireAccessTokens()

	// refreshed transparently
	require.NoError(t, e.newCLI().run([]string{"portalctl", "whoami"}))
	assert.Equal(t, 1, e.backend.Hits(http.MethodPost, "/auth/refresh"))

	e.backend.ExpireAccessTokens()
	e.backend.FailRefresh(true)
	err := e.newCLI().run([]string{"portalctl", "whoami"})
	assert.Equal(t, errNotLoggedIn, err)
	assert.Contains(t, e.stderr.String(), "Your session has expired")

	// the tokens are gone: no request at all
	hits := e.backend.TotalHits()
	assert.Equal(t, errNotLoggedIn, e.newCLI().run([]string{"portalctl", "whoami"}))
	assert.Equal(t, hits, e.backend.TotalHits())
}

func Test_commandLine_bulk(t *testing.T) {
	orig := bulk.NowFunc
	bulk.NowFunc = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { bulk.NowFunc = orig })

	e := setup(t)
	e.logIn(t, adminEmail)
	out := t.TempDir()

	csvFile := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, ioutil.WriteFile(csvFile, []byte("email\na@b.c\n"), 0o600))
	e.backend.SetImportResult(bulk.ImportResult{Success: 3, Failed: 1, Errors: []string{"row 4: missing email"}})

	type extra struct {
		wantFile    string
		wantData    []byte
		wantStdout  string
		wantStderr  string
		wantImports int
	}
	tests := []cliTest{
		{
			name: "unknown entity", args: []string{"template", "-entity", "lol"},
			wantErrStr: `"lol": unknown entity type`,
		},
		{
			name: "unknown format", args: []string{"export", "-entity", "fees", "-format", "pdf"},
			wantErrStr: `"pdf": unknown file format`,
		},
		{
			name: "csv template", args: []string{"template", "-entity", "students", "-format", "csv", "-out", out},
			extra: extra{
				wantFile: "students_import_template.csv",
				wantData: testutil.FileContent("template", "students", bulk.CSV),
			},
		},
		{
			name: "xlsx export", args: []string{"export", "-entity", "attendance", "-out", out},
			extra: extra{
				wantFile: "attendance_2024-03-09.xlsx",
				wantData: testutil.FileContent("export", "attendance", bulk.XLSX),
			},
		},
		{
			name: "no attendance template", args: []string{"template", "-entity", "attendance", "-out", out},
			wantErrStr: "downloading template: Not Found",
			extra:      extra{wantStderr: bulk.MsgTemplateFailed + "\n"},
		},
		{
			name: "import", args: []string{"import", "-entity", "students", "-file", csvFile},
			extra: extra{
				wantStdout:  "Imported: 3\nFailed: 1\n  - row 4: missing email\n",
				wantImports: 1,
			},
		},
		{
			name: "invalid file", args: []string{"import", "-entity", "students", "-file", "report.docx"},
			wantErr: bulk.ErrInvalidFile,
			extra:   extra{wantStderr: bulk.MsgInvalidFile + "\n", wantImports: 1},
		},
	}
	e.runTests(t, tests, func(t *testing.T, tt cliTest) {
		x, ok := tt.extra.(extra)
		if !ok {
			return
		}
		if x.wantFile != "" {
			data, err := ioutil.ReadFile(filepath.Join(out, x.wantFile))
			require.NoError(t, err)
			assert.Equal(t, x.wantData, data)
			assert.Equal(t, "Saved "+filepath.Join(out, x.wantFile)+"\n", e.stdout.String())
		}
		if x.wantStdout != "" {
			assert.Equal(t, x.wantStdout, e.stdout.String())
		}
		if x.wantStderr != "" {
			assert.Equal(t, x.wantStderr, e.stderr.String())
		}
		if x.wantImports > 0 {
			assert.Len(t, e.backend.Imports(), x.wantImports)
		}
	})
}

func Test_commandLine_bulkFailures(t *testing.T) {
	e := setup(t)
	csvFile := filepath.Join(t.TempDir(), "fees.csv")
	require.NoError(t, ioutil.WriteFile(csvFile, []byte("amount\n"), 0o600))

	// anonymous
	err := e.newCLI().run([]string{"portalctl", "export", "-entity", "fees"})
	assert.Equal(t, errNotLoggedIn, err)

	// teachers can't
	e.logIn(t, teacherEmail)
	err = e.newCLI().run([]string{"portalctl", "import", "-entity", "fees", "-file", csvFile})
	assert.Equal(t, errUnauthorized, err)
	assert.Empty(t, e.backend.Imports())

	// backend rejection
	e.logIn(t, adminEmail)
	e.backend.FailBulk(http.StatusBadRequest, testutil.DetailBadFileType)
	err = e.newCLI().run([]string{"portalctl", "import", "-entity", "fees", "-file", csvFile})
	assert.EqualError(t, err, "nothing was imported")
	assert.Equal(t, "Imported: 0\nFailed: 1\n  - "+testutil.DetailBadFileType+"\n", e.stdout.String())

	err = e.newCLI().run([]string{"portalctl", "export", "-entity", "fees", "-out", t.TempDir()})
	assert.Error(t, err)
	assert.Equal(t, bulk.MsgExportFailed+"\n", e.stderr.String())

	// missing file
	err = e.newCLI().run([]string{"portalctl", "import", "-entity", "fees", "-file", filepath.Join(t.TempDir(), "nope.csv")})
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
