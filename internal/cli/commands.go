package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/mockapi"
	"github.com/jrsteele09/go-session-client/sessions"
)

var errNotSignedIn = errors.New("not signed in")

// LoginCommand signs in with username and password.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "Username",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password (read from stdin when omitted)",
			},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	e := getEnv(c)
	password, err := passwordFlag(c, "password")
	if err != nil {
		return err
	}
	s, err := e.client.Login(c.Context, c.String("username"), password)
	if err != nil {
		return err
	}
	printSignedIn(e.stdout, s)
	return nil
}

// RegisterCommand creates an account and signs it in.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "first-name", Usage: "First name"},
			&cli.StringFlag{Name: "last-name", Usage: "Last name"},
			&cli.StringFlag{Name: "role", Usage: "Role", Value: auth.DefaultRole},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (read from stdin when omitted)"},
		},
		Action: register,
	}
}

func register(c *cli.Context) error {
	e := getEnv(c)
	password, err := passwordFlag(c, "password")
	if err != nil {
		return err
	}
	s, err := e.client.Register(c.Context, auth.RegisterRequest{
		FirstName: c.String("first-name"),
		LastName:  c.String("last-name"),
		Username:  c.String("username"),
		Email:     c.String("email"),
		Password:  password,
		Role:      c.String("role"),
	})
	if err != nil {
		return err
	}
	printSignedIn(e.stdout, s)
	return nil
}

// WhoAmICommand prints the stored profile, memberships and modules.
func WhoAmICommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the stored session as JSON"},
		},
		Action: whoami,
	}
}

func whoami(c *cli.Context) error {
	e := getEnv(c)
	s, ok := e.client.GetUserData()
	if !ok {
		return errNotSignedIn
	}
	if c.Bool("json") {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	p := s.Profile
	fmt.Fprintf(e.stdout, "User:      %s (%s %s)\n", p.Username, p.FirstName, p.LastName)
	fmt.Fprintf(e.stdout, "Email:     %s\n", p.Email)
	fmt.Fprintf(e.stdout, "Roles:     %s\n", strings.Join(p.Roles, ", "))
	fmt.Fprintln(e.stdout, "Companies:")
	for _, t := range s.Tenants {
		marker := " "
		if utils.Deref(s.ActiveTenantID) == t.ID {
			marker = "*"
		}
		fmt.Fprintf(e.stdout, "  %s %d %s\n", marker, t.ID, t.Name)
	}
	fmt.Fprintln(e.stdout, "Modules:")
	for _, m := range s.Modules {
		fmt.Fprintf(e.stdout, "  %s (%s)\n", m.ModuleName, m.ModuleID)
		for _, ent := range m.Entities {
			fmt.Fprintf(e.stdout, "    %s: %s\n", ent.EntityName, strings.Join(ent.Permissions, ","))
		}
	}
	return nil
}

// SwitchCommand changes the active company.
func SwitchCommand() *cli.Command {
	return &cli.Command{
		Name:      "switch",
		Usage:     "Switch the active company",
		ArgsUsage: "COMPANY_ID",
		Action:    switchCompany,
	}
}

func switchCompany(c *cli.Context) error {
	e := getEnv(c)
	if c.NArg() != 1 {
		return errors.New("usage: sessionctl switch COMPANY_ID")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "company id %q", c.Args().First())
	}
	_, err = e.client.SwitchTenant(c.Context, id)
	return err
}

// RefreshCommand trades the refresh cookie for a new access token.
func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the access token",
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			if _, err := e.client.Refresh(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, "Token refreshed")
			return nil
		},
	}
}

// LogoutCommand ends the session.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out",
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			e.entered.Store(true)
			e.client.Logout()
			fmt.Fprintln(e.stdout, "Signed out")
			return nil
		},
	}
}

// CompaniesCommand lists the companies of the signed-in user from the
// application API. It runs behind the route gate and the request authorizer.
func CompaniesCommand() *cli.Command {
	return &cli.Command{
		Name:  "companies",
		Usage: "List your companies from the API",
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			return e.gate.Protect(func(ctx context.Context) error {
				return listCompanies(ctx, e)
			})(c.Context)
		},
	}
}

func listCompanies(ctx context.Context, e *env) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+mockapi.RouteCompanies, nil)
	if err != nil {
		return errors.Wrap(err, "[listCompanies] new request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := e.api.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("companies: %s", res.Status)
	}

	var body mockapi.CompaniesResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return errors.Wrap(err, "[listCompanies] decode")
	}
	for _, company := range body.Companies {
		marker := " "
		if company.ID == body.ActiveCompanyID {
			marker = "*"
		}
		fmt.Fprintf(e.stdout, "%s %d\t%s\t%s\t%d modules\n", marker, company.ID, company.Name, company.Country, len(company.Modules))
	}
	return nil
}

func printSignedIn(w io.Writer, s *sessions.Session) {
	company := "no company"
	if s.ActiveTenantID != nil {
		if t, ok := s.Tenant(*s.ActiveTenantID); ok {
			company = t.Name
		}
	}
	fmt.Fprintf(w, "Signed in as %s (%s)\n", s.Profile.Username, company)
}

// passwordFlag returns the named flag or, when it is empty, the first line
// of stdin.
func passwordFlag(c *cli.Context, name string) (string, error) {
	if v := c.String(name); v != "" {
		return v, nil
	}
	fmt.Fprint(c.App.ErrWriter, "Password: ")
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
