package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/inactivity"
	"github.com/jrsteele09/go-session-client/internal/config"
)

// WatchCommand keeps the session open in the terminal. Every input line counts
// as a key press; while locked, the next line is taken as the password.
func WatchCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Hold an interactive session with idle lock and logout",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "lock-after",
				Usage: "Idle time before the session locks",
				Value: cfg.GetIdleLockAfter(),
			},
			&cli.DurationFlag{
				Name:  "logout-after",
				Usage: "Idle time before sign out (0 disables)",
				Value: cfg.GetIdleLogoutAfter(),
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period that ends a burst of input",
				Value: cfg.GetIdleDebounce(),
			},
		},
		Action: watch,
	}
}

func watch(c *cli.Context) error {
	e := getEnv(c)
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !e.gate.CanActivate(ctx) {
		return errNotSignedIn
	}

	tenants, cancelTenants := e.client.Subscribe()
	defer cancelTenants()

	monitor := inactivity.New(e.client, e.store,
		inactivity.WithLockAfter(c.Duration("lock-after")),
		inactivity.WithLogoutAfter(c.Duration("logout-after")),
		inactivity.WithDebounce(c.Duration("debounce")),
		inactivity.WithMetrics(e.metrics),
		inactivity.WithLogger(e.logger),
	)
	states, cancelStates := monitor.Subscribe()
	defer cancelStates()
	defer monitor.Stop()

	lines := readLines(ctx, c.App.Reader)
	state := monitor.Start()
	fmt.Fprintln(e.stdout, "Watching session. Type to stay active, Ctrl-C to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			state = s
			if s == inactivity.Locked {
				fmt.Fprint(e.stdout, "\nSession locked. Password: ")
			}
		case ev, ok := <-tenants:
			if ok && !ev.Present && !e.client.IsAuthenticated() {
				fmt.Fprintln(e.stdout, "\nSigned out after inactivity")
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if state != inactivity.Locked {
				monitor.Activity(inactivity.KeyPress)
				continue
			}
			err := monitor.Unlock(ctx, line)
			switch {
			case err == nil:
				state = monitor.State()
				fmt.Fprintln(e.stdout, "Unlocked")
			case errors.Is(err, auth.ErrInvalidCredentials):
				fmt.Fprint(e.stdout, "Password: ")
			default:
				return err
			}
		}
	}
}

// readLines streams lines from r until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
