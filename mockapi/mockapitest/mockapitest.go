// Package mockapitest starts a mock auth API on a local httptest server.
package mockapitest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/mockapi"
)

const (
	AuthBasePath = "/api/v2/auth"
	JWTSecret    = "test-secret"
)

// Config is a fixed mockapi.Config for tests.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SeedUsers       bool
}

var _ mockapi.Config = Config{}

func (Config) GetPort() string     { return ":0" }
func (Config) GetAppName() string  { return "mockauth-test" }
func (Config) GetEnv() string      { return "TEST" }
func (Config) GetLogLevel() string { return "disabled" }
func (Config) GetMockJWTSecret() string {
	return JWTSecret
}
func (c Config) GetMockAccessTokenTTL() time.Duration  { return c.AccessTokenTTL }
func (c Config) GetMockRefreshTokenTTL() time.Duration { return c.RefreshTokenTTL }
func (c Config) GetMockSeedUsers() bool                { return c.SeedUsers }
func (Config) GetAuthBasePath() string                 { return AuthBasePath }

// DefaultConfig issues 15 minute access tokens and seeds the demo accounts.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		SeedUsers:       true,
	}
}

type Fixture struct {
	Mock    *mockapi.Server
	HTTP    *httptest.Server
	BaseURL string // API origin
	AuthURL string // origin plus auth base path
}

// Start runs a seeded mock until the test ends.
func Start(t testing.TB, opts ...mockapi.Option) *Fixture {
	t.Helper()
	return StartWithConfig(t, DefaultConfig(), opts...)
}

func StartWithConfig(t testing.TB, cfg Config, opts ...mockapi.Option) *Fixture {
	t.Helper()

	mock, err := mockapi.New(cfg, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	return &Fixture{
		Mock:    mock,
		HTTP:    srv,
		BaseURL: srv.URL,
		AuthURL: srv.URL + AuthBasePath,
	}
}

// RefreshCalls is the number of refresh_token requests served so far.
func (f *Fixture) RefreshCalls() int {
	return f.Mock.Calls(AuthBasePath + mockapi.RouteRefreshToken)
}
