package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/authorizer"
	"github.com/jrsteele09/go-session-client/guard"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/sessions/kvbadger"
	"github.com/jrsteele09/go-session-client/sessions/kvmemory"
	"github.com/jrsteele09/go-session-client/sessions/kvredis"
)

// env is everything a command needs, wired for one invocation.
type env struct {
	cfg     config.Config
	logger  zerolog.Logger
	apiURL  string
	closer  io.Closer
	store   *sessions.Store
	client  *auth.Client
	gate    *guard.Gate
	api     *http.Client
	reg     *prometheus.Registry
	metrics *metrics.Collector
	stdout  io.Writer
	stderr  io.Writer
	entered atomic.Bool // the entry view was requested during this run
}

func newEnv(c *cli.Context, o *appOptions) (*env, error) {
	level := o.cfg.GetLogLevel()
	if c.Bool("verbose") {
		level = "debug"
	}
	e := &env{
		cfg:    o.cfg,
		logger: logging.NewWithWriter(o.stderr, o.cfg.GetEnv(), level),
		apiURL: strings.TrimRight(c.String("api"), "/"),
		reg:    prometheus.NewRegistry(),
		stdout: o.stdout,
		stderr: o.stderr,
	}
	e.metrics = metrics.New(e.reg)

	backend := o.backend
	if backend == nil {
		opened, closer, err := openBackend(c, o.cfg, e.logger)
		if err != nil {
			return nil, err
		}
		backend, e.closer = opened, closer
	}

	session, durable, err := scopes(backend, c.Bool("new-session"))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = sessions.NewStore(session, durable, sessions.WithLogger(e.logger))

	jar, err := auth.NewStoredJar(durable)
	if err != nil {
		e.Close()
		return nil, err
	}
	authPath := c.String("auth-path")
	e.client, err = auth.NewClient(e.store, e.apiURL+authPath,
		auth.WithHTTPClient(&http.Client{Jar: jar, Timeout: o.cfg.GetHTTPTimeout()}),
		auth.WithNotifier(printNotifier{w: o.stderr}),
		auth.WithNavigator(auth.NavigatorFunc(e.navigateToEntry)),
		auth.WithRefreshCoalescing(o.cfg.GetRefreshCoalescing()),
		auth.WithMetrics(e.metrics),
		auth.WithLogger(e.logger),
	)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.gate = guard.New(e.client, auth.NavigatorFunc(e.navigateToEntry), guard.WithLogger(e.logger))

	tr, err := authorizer.New(e.apiURL, authPath, e.store, e.client,
		authorizer.WithBase(&http.Transport{Proxy: http.ProxyFromEnvironment}),
		authorizer.WithMetrics(e.metrics),
		authorizer.WithLogger(e.logger),
	)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.api = &http.Client{Transport: tr, Timeout: o.cfg.GetHTTPTimeout()}
	return e, nil
}

func openBackend(c *cli.Context, cfg config.Config, logger zerolog.Logger) (sessions.Backend, io.Closer, error) {
	switch config.StorageType(c.String("storage")) {
	case config.StorageMemory:
		return kvmemory.New(), nil, nil
	case config.StorageBadger:
		store, err := kvbadger.Open(c.String("data-folder"), logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open badger store")
		}
		return store, store, nil
	case config.StorageRedis:
		store, err := kvredis.Dial(cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB(), cfg.GetRedisPrefix())
		if err != nil {
			return nil, nil, errors.Wrap(err, "open redis store")
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", c.String("storage"))
	}
}

// scopes binds the session scope to the current browsing session. Starting a
// new one drops the keys of the previous session scope.
func scopes(backend sessions.Backend, rotate bool) (sessions.KV, sessions.KV, error) {
	var previous string
	if rotate {
		previous, _, _ = sessions.Namespace(backend, "durable/").Get(sessions.KeyBrowsingSession)
	}
	session, durable, err := sessions.Scopes(backend, rotate)
	if err != nil {
		return nil, nil, errors.Wrap(err, "session scopes")
	}
	if previous != "" {
		if err := backend.DeletePrefix("session/" + previous + "/"); err != nil {
			return nil, nil, errors.Wrap(err, "drop previous session")
		}
	}
	return session, durable, nil
}

func (e *env) navigateToEntry() {
	if !e.entered.CompareAndSwap(false, true) {
		return
	}
	fmt.Fprintln(e.stderr, "Not signed in. Run: sessionctl login")
}

// writeMetrics prints this run's session metrics to stderr.
func (e *env) writeMetrics() {
	if err := metrics.WriteText(e.stderr, e.reg); err != nil {
		e.logger.Err(err).Msg("write metrics")
	}
}

func (e *env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

type printNotifier struct {
	w io.Writer
}

func (n printNotifier) Success(message string) {
	fmt.Fprintln(n.w, message)
}

func (n printNotifier) Error(message string) {
	fmt.Fprintf(n.w, "error: %s\n", message)
}
