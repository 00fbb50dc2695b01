package authorizer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/authorizer"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/mockapi"
	"github.com/jrsteele09/go-session-client/mockapi/mockapitest"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/sessions/kvmemory"
)

// fakeSession is a token source whose Refresh swaps in the next token.
type fakeSession struct {
	token      atomic.Value
	next       string
	refreshErr error
	refreshes  atomic.Int32
	logouts    atomic.Int32
}

func newFakeSession(token, next string) *fakeSession {
	s := &fakeSession{next: next}
	s.token.Store(token)
	return s
}

func (s *fakeSession) Token() (*oauth2.Token, error) {
	raw := s.token.Load().(string)
	if raw == "" {
		return nil, sessions.ErrNoToken
	}
	return &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}, nil
}

func (s *fakeSession) Refresh(context.Context) (*sessions.Session, error) {
	s.refreshes.Add(1)
	if s.refreshErr != nil {
		s.token.Store("")
		return nil, s.refreshErr
	}
	s.token.Store(s.next)
	return &sessions.Session{AccessToken: s.next}, nil
}

func (s *fakeSession) Logout() {
	s.logouts.Add(1)
}

// echoServer answers 401 unless the bearer is "fresh" and echoes the body.
func echoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.HasPrefix(r.URL.Path, "/api/v2/auth") {
			w.Header().Set("X-Auth", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRetriesOnceAfterRefresh(t *testing.T) {
	srv, calls := echoServer(t)
	session := newFakeSession("stale", "fresh")
	m := metrics.New(prometheus.NewRegistry())

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session, authorizer.WithMetrics(m))
	require.NoError(t, err)

	// strings.Reader bodies get GetBody from NewRequest; wrap it so the
	// transport has to buffer.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v2/things", io.NopCloser(strings.NewReader(`{"name":"widget"}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	res, err := tr.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, `{"name":"widget"}`, string(body))
	require.Equal(t, int32(1), session.refreshes.Load())
	require.Equal(t, int32(2), calls.Load())
	require.Empty(t, req.Header.Get("Authorization"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues(metrics.ResultSuccess)))
}

func TestSecond401IsReturnedWithoutLooping(t *testing.T) {
	srv, calls := echoServer(t)
	session := newFakeSession("stale", "still-stale")

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)

	res, err := tr.Client().Get(srv.URL + "/api/v2/things")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, int32(1), session.refreshes.Load())
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, int32(0), session.logouts.Load())
}

func TestRefreshFailureLogsOut(t *testing.T) {
	srv, calls := echoServer(t)
	session := newFakeSession("stale", "")
	session.refreshErr = errors.New("refresh rejected")
	m := metrics.New(prometheus.NewRegistry())

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session, authorizer.WithMetrics(m))
	require.NoError(t, err)

	_, err = tr.Client().Get(srv.URL + "/api/v2/things")
	require.ErrorIs(t, err, auth.ErrTokenRefreshFailed)
	require.Equal(t, int32(1), session.refreshes.Load())
	require.Equal(t, int32(1), session.logouts.Load())
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues(metrics.ResultFailure)))
}

func TestPassThrough(t *testing.T) {
	srv, _ := echoServer(t)
	foreign, _ := echoServer(t)
	session := newFakeSession("fresh", "fresh")

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)
	client := tr.Client()

	t.Run("auth path", func(t *testing.T) {
		res, err := client.Post(srv.URL+"/api/v2/auth/refresh_token", "application/json", nil)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Empty(t, res.Header.Get("X-Auth"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		res, err := client.Get(foreign.URL + "/api/v2/things")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	require.Equal(t, int32(0), session.refreshes.Load())
}

func TestNoTokenSendsUnauthenticated(t *testing.T) {
	srv, calls := echoServer(t)
	session := newFakeSession("", "fresh")

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)

	res, err := tr.Client().Get(srv.URL + "/api/v2/things")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, int32(2), calls.Load())
}

func TestNoTokenKeepsCallerAuthorization(t *testing.T) {
	srv, calls := echoServer(t)
	session := newFakeSession("", "")

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v2/things", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer fresh")

	res, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, int32(0), session.refreshes.Load())
}

// closeTracker records whether the caller's body was closed.
type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestClosesCallerBodyWhenReplayable(t *testing.T) {
	srv, _ := echoServer(t)
	session := newFakeSession("stale", "fresh")

	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v2/things", strings.NewReader(`{"name":"gadget"}`))
	require.NoError(t, err)
	require.NotNil(t, req.GetBody)
	body := &closeTracker{Reader: strings.NewReader(`{"name":"gadget"}`)}
	req.Body = body

	res, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer res.Body.Close()

	got, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, `{"name":"gadget"}`, string(got))
	require.True(t, body.closed.Load())
}

// Both requests see a 401 before either refresh completes, so each runs its
// own refresh and its own single retry.
func TestConcurrent401sEachRetryOnce(t *testing.T) {
	const requests = 2
	var calls, stale atomic.Int32
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if stale.Add(1) == requests {
			close(arrived)
		}
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	session := newFakeSession("stale", "fresh")
	tr, err := authorizer.New(srv.URL, "/api/v2/auth", session, session)
	require.NoError(t, err)
	client := tr.Client()

	statuses := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/api/v2/things")
			if err != nil {
				statuses <- 0
				return
			}
			res.Body.Close()
			statuses <- res.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}
	require.Equal(t, int32(requests), session.refreshes.Load())
	require.Equal(t, int32(2*requests), calls.Load())
}

func TestNewValidatesArguments(t *testing.T) {
	session := newFakeSession("", "")
	_, err := authorizer.New("localhost", "/api/v2/auth", session, session)
	require.Error(t, err)
	_, err = authorizer.New("http://localhost", "/api/v2/auth", nil, session)
	require.Error(t, err)
}

type apiFixture struct {
	api    *mockapitest.Fixture
	client *auth.Client
	http   *http.Client
}

func setupTestFixture(t *testing.T) *apiFixture {
	t.Helper()
	api := mockapitest.Start(t)

	session, durable, err := sessions.Scopes(kvmemory.New(), false)
	require.NoError(t, err)
	store := sessions.NewStore(session, durable)

	authHTTP, err := auth.NewHTTPClient(5 * time.Second)
	require.NoError(t, err)
	client, err := auth.NewClient(store, api.AuthURL, auth.WithHTTPClient(authHTTP))
	require.NoError(t, err)

	tr, err := authorizer.New(api.BaseURL, mockapitest.AuthBasePath, store, client)
	require.NoError(t, err)

	return &apiFixture{api: api, client: client, http: tr.Client()}
}

func (f *apiFixture) companies(t *testing.T) (*mockapi.CompaniesResponse, error) {
	res, err := f.http.Get(f.api.BaseURL + mockapi.RouteCompanies)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}
	var body mockapi.CompaniesResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func TestProtectedResource(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.client.Login(context.Background(), mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	require.NoError(t, err)

	body, err := f.companies(t)
	require.NoError(t, err)
	require.Equal(t, mockapi.SeedCompanyAcme, body.ActiveCompanyID)
	require.Len(t, body.Companies, 2)
	require.Equal(t, 0, f.api.RefreshCalls())
}

// Two requests racing with an expired token each refresh once and retry once.
func TestConcurrent401sRefreshIndependently(t *testing.T) {
	f := setupTestFixture(t)

	f.api.Mock.SetAccessTokenTTL(-time.Minute)
	_, err := f.client.Login(context.Background(), mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	require.NoError(t, err)
	f.api.Mock.SetAccessTokenTTL(15 * time.Minute)
	f.api.Mock.ResetCalls()

	const requests = 2
	start := make(chan struct{})
	errs := make(chan error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.companies(t)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, f.api.RefreshCalls(), requests)
	require.GreaterOrEqual(t, f.api.RefreshCalls(), 1)
	require.LessOrEqual(t, f.api.Mock.Calls(mockapi.RouteCompanies), 2*requests)
	require.True(t, f.client.IsAuthenticated())
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := setupTestFixture(t)

	f.api.Mock.SetAccessTokenTTL(-time.Minute)
	_, err := f.client.Login(context.Background(), mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	require.NoError(t, err)
	f.api.Mock.SetRefreshFailure(true)

	_, err = f.companies(t)
	require.ErrorIs(t, err, auth.ErrTokenRefreshFailed)
	require.False(t, f.client.IsAuthenticated())
	require.Equal(t, 1, f.api.RefreshCalls())
	require.Equal(t, 1, f.api.Mock.Calls(mockapi.RouteCompanies))
}
