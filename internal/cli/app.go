// Package cli implements sessionctl, a terminal front-end for the session
// client.
//
// It uses urfave/cli/v2 for command parsing. Every invocation rebuilds the
// session from the configured store, so a login in one run is visible to the
// next.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/sessions"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const envMetadataKey = "env"

type appOptions struct {
	cfg     config.Config
	backend sessions.Backend
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

type AppOption func(*appOptions)

func WithConfig(cfg config.Config) AppOption {
	return func(o *appOptions) {
		o.cfg = cfg
	}
}

// WithBackend uses backend instead of opening the configured store. The
// backend is not closed after the command.
func WithBackend(backend sessions.Backend) AppOption {
	return func(o *appOptions) {
		o.backend = backend
	}
}

func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(o *appOptions) {
		o.stdin = stdin
		o.stdout = stdout
		o.stderr = stderr
	}
}

// App creates the CLI application.
func App(opts ...AppOption) *cli.App {
	o := &appOptions{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.New()
	}

	app := &cli.App{
		Name:      "sessionctl",
		Usage:     "Sign in to the admin API and manage the local session",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Reader:    o.stdin,
		Writer:    o.stdout,
		ErrWriter: o.stderr,
		Flags:     globalFlags(o.cfg),
		Commands: []*cli.Command{
			LoginCommand(),
			RegisterCommand(),
			WhoAmICommand(),
			SwitchCommand(),
			RefreshCommand(),
			LogoutCommand(),
			CompaniesCommand(),
			WatchCommand(o.cfg),
		},
		Before: func(c *cli.Context) error {
			e, err := newEnv(c, o)
			if err != nil {
				return err
			}
			c.App.Metadata[envMetadataKey] = e
			return nil
		},
		After: func(c *cli.Context) error {
			if e := getEnv(c); e != nil {
				delete(c.App.Metadata, envMetadataKey)
				if c.Bool("metrics") {
					e.writeMetrics()
				}
				return e.Close()
			}
			return nil
		},
	}
	return app
}

func globalFlags(cfg config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api",
			Usage:   "Application API origin (e.g., http://localhost:8080)",
			EnvVars: []string{"API_BASE_URL"},
			Value:   cfg.GetAPIBaseURL(),
		},
		&cli.StringFlag{
			Name:  "auth-path",
			Usage: "Auth API base path",
			Value: cfg.GetAuthBasePath(),
		},
		&cli.StringFlag{
			Name:    "storage",
			Usage:   "Session storage: memory, badger, redis",
			EnvVars: []string{"STORAGE"},
			Value:   string(cfg.GetStorageType()),
		},
		&cli.StringFlag{
			Name:    "data-folder",
			Usage:   "Badger data directory",
			EnvVars: []string{"DATA_FOLDER"},
			Value:   cfg.GetDataFolder(),
		},
		&cli.BoolFlag{
			Name:  "new-session",
			Usage: "Start a new browsing session; the previous session scope is discarded",
		},
		&cli.BoolFlag{
			Name:  "metrics",
			Usage: "Print session metrics to stderr on exit",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// getEnv retrieves the per-invocation environment from context.
func getEnv(c *cli.Context) *env {
	if e, ok := c.App.Metadata[envMetadataKey].(*env); ok {
		return e
	}
	return nil
}
