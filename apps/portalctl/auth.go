package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/guard"
	"github.com/trezcool/masomo-portal/core/nav"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	errNotLoggedIn  = errors.New("not logged in, run: portalctl login -email EMAIL")
	errUnauthorized = errors.New("you don't have permission to do this")
)

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (cli *commandLine) login(ctx context.Context, email, pwd string) error {
	in := loginInput{Email: core.CleanString(email, true /* lower */), Password: pwd}
	if err := core.ValidateStruct(cli.validate, cli.translator, in); err != nil {
		if vErr, ok := errors.Cause(err).(*core.ValidationError); ok {
			flds := vErr.FieldErrors()
			for _, fld := range []string{"email", "password"} {
				if msg, ok := flds[fld]; ok {
					return errors.Errorf("%s: %s", fld, msg)
				}
			}
		}
		return err
	}

	if err := cli.store.Login(ctx, in.Email, in.Password); err != nil {
		return err
	}
	usr := cli.store.State().User
	fmt.Fprintf(cli.stdout, "Logged in as %s (%s)\n", usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	cli.store.Logout(ctx)
	fmt.Fprintln(cli.stdout, "Logged out")
	return nil
}

// authorize validates the stored session and checks the user has one of the allowed roles (any role if none given).
func (cli *commandLine) authorize(ctx context.Context, allowed ...user.Role) (user.User, error) {
	if len(allowed) == 0 {
		allowed = user.AllRoles
	}
	cli.store.CheckAuth(ctx)

	st := cli.store.State()
	switch guard.Decide(st, allowed) {
	case guard.Render:
		return *st.User, nil
	case guard.RedirectUnauthorized:
		return user.User{}, errUnauthorized
	default:
		return user.User{}, errNotLoggedIn
	}
}

func (cli *commandLine) whoami(ctx context.Context) error {
	usr, err := cli.authorize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "%s (%s)\n", usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) nav(ctx context.Context, path string) error {
	usr, err := cli.authorize(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		path = user.RedirectPath(usr.Role)
	}

	sidebar := nav.NewSidebar(usr.Role, path)
	for _, link := range sidebar.Links() {
		marker := " "
		if link.Active {
			marker = "*"
		}
		fmt.Fprintf(cli.stdout, "%s %-12s %s\n", marker, link.Name, link.Href)
	}
	return nil
}
