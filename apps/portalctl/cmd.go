package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/services/api"
	"github.com/trezcool/masomo-portal/storage/file"
)

const stateFile = "state.json"

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	storage    core.Storage
	client     *api.Client
	store      *session.Store
	validate   *validator.Validate
	translator ut.Translator
	stdout     io.Writer
	stderr     io.Writer
}

func newCommandLine(conf *core.Config, logger core.Logger, stdout, stderr io.Writer) *commandLine {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	cli := &commandLine{
		storage:    filestore.New(filepath.Join(conf.CLI.StateDir, stateFile)),
		validate:   validate,
		translator: translator,
		stdout:     stdout,
		stderr:     stderr,
	}
	cli.client = api.NewFromConfig(conf, cli.storage, logger, func(context.Context) {
		fmt.Fprintln(cli.stderr, "Your session has expired, please log in again: portalctl login -email EMAIL")
	})
	cli.store = session.NewStore(context.Background(), cli.client, cli.storage, logger)
	return cli
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.stdout, "Usage:")
	fmt.Fprintln(cli.stdout, "  login -email EMAIL                              - log in (the password is prompted)")
	fmt.Fprintln(cli.stdout, "  logout                                          - log out")
	fmt.Fprintln(cli.stdout, "  whoami                                          - show the logged in user")
	fmt.Fprintln(cli.stdout, "  nav [-path PATH]                                - show the portal navigation of the logged in user")
	fmt.Fprintln(cli.stdout, "  template -entity ENTITY [-format FMT] [-out DIR] - download an import template")
	fmt.Fprintln(cli.stdout, "  export -entity ENTITY [-format FMT] [-out DIR]   - export all records")
	fmt.Fprintln(cli.stdout, "  import -entity ENTITY -file FILE                - import records from a CSV or Excel file")
	fmt.Fprintln(cli.stdout, "ENTITY: students | teachers | fees | attendance; FMT: xlsx (default) | csv")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	loginCmd := cli.newFlagSet("login")
	loginEmail := loginCmd.String("email", "", "The user's email. The password will be prompted next.")

	navCmd := cli.newFlagSet("nav")
	navPath := navCmd.String("path", "", "The current page (defaults to the user's landing page).")

	templateCmd := cli.newFlagSet("template")
	templateEntity := templateCmd.String("entity", "", "students | teachers | fees | attendance")
	templateFormat := templateCmd.String("format", "xlsx", "xlsx | csv")
	templateOut := templateCmd.String("out", ".", "The directory to save the file to.")

	exportCmd := cli.newFlagSet("export")
	exportEntity := exportCmd.String("entity", "", "students | teachers | fees | attendance")
	exportFormat := exportCmd.String("format", "xlsx", "xlsx | csv")
	exportOut := exportCmd.String("out", ".", "The directory to save the file to.")

	importCmd := cli.newFlagSet("import")
	importEntity := importCmd.String("entity", "", "students | teachers | fees | attendance")
	importFile := importCmd.String("file", "", "The CSV or Excel file to upload.")

	switch args[1] {
	case "login":
		if err := parseFlags(loginCmd, args[2:]); err != nil {
			return err
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.stdout, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.stdout)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, string(pwd))

	case "logout":
		return cli.logout(ctx)

	case "whoami":
		return cli.whoami(ctx)

	case "nav":
		if err := parseFlags(navCmd, args[2:]); err != nil {
			return err
		}
		return cli.nav(ctx, *navPath)

	case "template":
		if err := parseFlags(templateCmd, args[2:]); err != nil {
			return err
		}
		if *templateEntity == "" {
			templateCmd.Usage()
			return errHelp
		}
		return cli.downloadTemplate(ctx, *templateEntity, *templateFormat, *templateOut)

	case "export":
		if err := parseFlags(exportCmd, args[2:]); err != nil {
			return err
		}
		if *exportEntity == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(ctx, *exportEntity, *exportFormat, *exportOut)

	case "import":
		if err := parseFlags(importCmd, args[2:]); err != nil {
			return err
		}
		if *importEntity == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importFile(ctx, *importEntity, *importFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
