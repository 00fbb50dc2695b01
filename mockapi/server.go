// Package mockapi is an in-process implementation of the auth API the
// session client talks to. It backs the package tests and cmd/mockauth.
package mockapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/mockapi/refresh"
	refreshrepofake "github.com/jrsteele09/go-session-client/mockapi/refresh/repofake"
	"github.com/jrsteele09/go-session-client/tenants"
	tenantrepofakes "github.com/jrsteele09/go-session-client/tenants/repofakes"
	"github.com/jrsteele09/go-session-client/users"
	fakeuserrepo "github.com/jrsteele09/go-session-client/users/repofake"
)

// Config is the subset of the application configuration the mock reads.
type Config interface {
	config.EnvConfig
	config.MockConfig
	GetAuthBasePath() string
}

// Repos holds the storage the mock serves from.
type Repos struct {
	Users         users.UserRepo
	Tenants       tenants.Repo
	RefreshTokens refresh.Repo
}

type Server struct {
	env      string
	basePath string
	mux      *http.ServeMux
	routes   []string
	repos    Repos
	issuer   *Issuer
	refresh  *refresh.Manager
	logger   zerolog.Logger
	requests *prometheus.CounterVec

	accessTTL   atomic.Int64 // nanoseconds
	refreshTTL  time.Duration
	failRefresh atomic.Bool

	calls     map[string]int
	callsLock sync.Mutex
}

type Option func(*Server)

func WithRepos(repos Repos) Option {
	return func(s *Server) {
		s.repos = repos
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegisterer registers the request counter with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) {
		if reg != nil {
			reg.MustRegister(s.requests)
		}
	}
}

func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL.Store(int64(ttl))
	}
}

func New(cfg Config, opts ...Option) (*Server, error) {
	s := &Server{
		env:        cfg.GetEnv(),
		basePath:   strings.TrimRight(cfg.GetAuthBasePath(), "/"),
		mux:        http.NewServeMux(),
		issuer:     NewIssuer(NewHMACSigner(cfg.GetMockJWTSecret()), cfg.GetAppName()),
		logger:     zerolog.Nop(),
		refreshTTL: cfg.GetMockRefreshTokenTTL(),
		calls:      make(map[string]int),
		repos: Repos{
			Users:         fakeuserrepo.NewFakeUserRepo(),
			Tenants:       tenantrepofakes.NewFakeTenantRepo(),
			RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
		},
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockauth",
			Name:      "requests_total",
			Help:      "Requests served by route and status code.",
		}, []string{"route", "code"}),
	}
	s.accessTTL.Store(int64(cfg.GetMockAccessTokenTTL()))
	for _, opt := range opts {
		opt(s)
	}
	s.refresh = refresh.NewManager(s.repos.RefreshTokens, s.refreshTTL)

	if cfg.GetMockSeedUsers() {
		if err := s.Seed(); err != nil {
			return nil, fmt.Errorf("[mockapi New] failed to seed: %w", err)
		}
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// BasePath returns the auth base path the mock serves under.
func (s *Server) BasePath() string {
	return s.basePath
}

func (s *Server) Issuer() *Issuer {
	return s.issuer
}

func (s *Server) Repos() Repos {
	return s.repos
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		s.logger.Info().Str("route", route).Msg("registered")
	}
}

// SetRefreshFailure makes every refresh_token call answer 401 while set.
func (s *Server) SetRefreshFailure(fail bool) {
	s.failRefresh.Store(fail)
}

// SetAccessTokenTTL changes the lifetime of tokens issued from now on. A
// non-positive ttl issues tokens that are already expired.
func (s *Server) SetAccessTokenTTL(ttl time.Duration) {
	s.accessTTL.Store(int64(ttl))
}

func (s *Server) accessTokenTTL() time.Duration {
	return time.Duration(s.accessTTL.Load())
}

// Calls returns how many requests route has received. route is a path such
// as RouteCompanies or s.BasePath()+RouteRefreshToken.
func (s *Server) Calls(route string) int {
	s.callsLock.Lock()
	defer s.callsLock.Unlock()
	return s.calls[route]
}

func (s *Server) ResetCalls() {
	s.callsLock.Lock()
	defer s.callsLock.Unlock()
	clear(s.calls)
}

func (s *Server) countCall(route string) {
	s.callsLock.Lock()
	defer s.callsLock.Unlock()
	s.calls[route]++
}
