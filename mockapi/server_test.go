package mockapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/mockapi"
	"github.com/jrsteele09/go-session-client/mockapi/mockapitest"
	"github.com/jrsteele09/go-session-client/sessions"
)

type testFixture struct {
	api    *mockapitest.Fixture
	client *http.Client
}

func setupTestFixture(t *testing.T, opts ...mockapi.Option) *testFixture {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testFixture{
		api:    mockapitest.Start(t, opts...),
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
}

func (f *testFixture) post(t *testing.T, route string, body any, bearer string) (*http.Response, []byte) {
	t.Helper()

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(http.MethodPost, f.api.AuthURL+route, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return f.do(t, req)
}

func (f *testFixture) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *testFixture) login(t *testing.T, username, password string) *sessions.Payload {
	t.Helper()

	resp, body := f.post(t, mockapi.RouteLogin, map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var p sessions.Payload
	require.NoError(t, json.Unmarshal(body, &p))
	return &p
}

func message(t *testing.T, body []byte) string {
	t.Helper()
	var m struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &m))
	return m.Message
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	p := f.login(t, mockapi.SeedAdminUsername, mockapi.SeedAdminPassword)
	require.NotEmpty(t, p.AccessToken)
	require.Equal(t, []string{"Acme", "Globex", "Initech"}, p.Companies)
	require.Equal(t, []int64{1, 2, 3}, p.CompanyIDs)
	require.Equal(t, "Acme", p.DefaultCompany)
	require.Len(t, p.Modules, 2)
	require.Equal(t, []string{"CREATE", "READ", "UPDATE", "DELETE"}, p.Modules[0].Entities[0].Permissions)

	claims, err := f.api.Mock.Issuer().Verify(p.AccessToken)
	require.NoError(t, err)
	require.Equal(t, mockapi.SeedAdminUsername, claims.Username)
	require.Equal(t, mockapi.SeedCompanyAcme, claims.CompanyID)
	require.Equal(t, []string{"ROLE_ADMIN"}, claims.Roles)
}

func TestLoginSetsHTTPOnlyRefreshCookie(t *testing.T) {
	f := setupTestFixture(t)

	resp, _ := f.post(t, mockapi.RouteLogin, map[string]string{"username": mockapi.SeedUserUsername, "password": mockapi.SeedUserPassword}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refresh *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == mockapi.RefreshCookieName {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, mockapitest.AuthBasePath, refresh.Path)
}

func TestLoginRejections(t *testing.T) {
	f := setupTestFixture(t)

	resp, body := f.post(t, mockapi.RouteLogin, map[string]string{"username": mockapi.SeedUserUsername, "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid credentials", message(t, body))

	resp, _ = f.post(t, mockapi.RouteLogin, map[string]string{"username": "nobody", "password": "x"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, f.api.Mock.Repos().Users.SetBlocked(mockapi.SeedUserUsername, true))
	resp, _ = f.post(t, mockapi.RouteLogin, map[string]string{"username": mockapi.SeedUserUsername, "password": mockapi.SeedUserPassword}, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUserPermissionsAreReadOnly(t *testing.T) {
	f := setupTestFixture(t)

	p := f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	for _, m := range p.Modules {
		for _, e := range m.Entities {
			require.Equal(t, []string{"READ"}, e.Permissions)
		}
	}
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	req := map[string]string{
		"firstName": "Jane",
		"lastName":  "Roe",
		"username":  "jroe",
		"email":     "jane@example.com",
		"password":  "Secret123",
	}
	resp, body := f.post(t, mockapi.RouteRegister, req, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p sessions.Payload
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, []string{"ROLE_USER"}, p.Roles)
	require.Equal(t, []int64{mockapi.SeedCompanyAcme}, p.CompanyIDs)

	resp, body = f.post(t, mockapi.RouteRegister, req, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "User already exists", message(t, body))

	resp, _ = f.post(t, mockapi.RouteRegister, map[string]string{"username": "x"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshAndFailureKnob(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)

	resp, body := f.post(t, mockapi.RouteRefreshToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var p sessions.Payload
	require.NoError(t, json.Unmarshal(body, &p))
	require.NotEmpty(t, p.AccessToken)
	require.Equal(t, 1, f.api.RefreshCalls())

	f.api.Mock.SetRefreshFailure(true)
	resp, _ = f.post(t, mockapi.RouteRefreshToken, nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 2, f.api.RefreshCalls())

	f.api.Mock.SetRefreshFailure(false)
	f.api.Mock.ResetCalls()
	require.Equal(t, 0, f.api.RefreshCalls())
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := setupTestFixture(t)

	resp, body := f.post(t, mockapi.RouteRefreshToken, nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Refresh token missing", message(t, body))
}

func TestRefreshKeepsSwitchedCompany(t *testing.T) {
	f := setupTestFixture(t)
	p := f.login(t, mockapi.SeedAdminUsername, mockapi.SeedAdminPassword)

	resp, _ := f.post(t, mockapi.RouteSwitchCompany, map[string]int64{"companyId": mockapi.SeedCompanyInitech}, p.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.post(t, mockapi.RouteRefreshToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed sessions.Payload
	require.NoError(t, json.Unmarshal(body, &refreshed))
	require.Equal(t, "Initech", refreshed.DefaultCompany)
}

func TestSwitchCompany(t *testing.T) {
	f := setupTestFixture(t)
	p := f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)

	resp, body := f.post(t, mockapi.RouteSwitchCompany, map[string]int64{"companyId": mockapi.SeedCompanyGlobex}, p.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var switched sessions.Payload
	require.NoError(t, json.Unmarshal(body, &switched))
	require.Equal(t, "Globex", switched.DefaultCompany)

	claims, err := f.api.Mock.Issuer().Verify(switched.AccessToken)
	require.NoError(t, err)
	require.Equal(t, mockapi.SeedCompanyGlobex, claims.CompanyID)

	resp, _ = f.post(t, mockapi.RouteSwitchCompany, map[string]int64{"companyId": mockapi.SeedCompanyInitech}, p.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.post(t, mockapi.RouteSwitchCompany, map[string]int64{"companyId": mockapi.SeedCompanyGlobex}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyPassword(t *testing.T) {
	f := setupTestFixture(t)
	p := f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)

	resp, body := f.post(t, mockapi.RouteVerifyPassword, map[string]string{"password": mockapi.SeedUserPassword}, p.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Password verified", message(t, body))

	resp, body = f.post(t, mockapi.RouteVerifyPassword, map[string]string{"password": "nope"}, p.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Invalid password", message(t, body))
}

func TestCompaniesRequiresValidToken(t *testing.T) {
	f := setupTestFixture(t)
	p := f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)

	req, err := http.NewRequest(http.MethodGet, f.api.BaseURL+mockapi.RouteCompanies, nil)
	require.NoError(t, err)
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var companies mockapi.CompaniesResponse
	require.NoError(t, json.Unmarshal(body, &companies))
	require.Equal(t, mockapi.SeedCompanyAcme, companies.ActiveCompanyID)
	require.Len(t, companies.Companies, 2)
	require.Equal(t, 2, f.api.Mock.Calls(mockapi.RouteCompanies))
}

func TestExpiredAccessTokenIsRejected(t *testing.T) {
	f := setupTestFixture(t, mockapi.WithAccessTokenTTL(-time.Minute))
	p := f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)

	req, err := http.NewRequest(http.MethodGet, f.api.BaseURL+mockapi.RouteCompanies, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.api.Mock.SetAccessTokenTTL(time.Minute)
	p = f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	resp, _ = f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := setupTestFixture(t, mockapi.WithRegisterer(reg))

	f.login(t, mockapi.SeedUserUsername, mockapi.SeedUserPassword)
	f.post(t, mockapi.RouteLogin, map[string]string{"username": "nobody"}, "")

	count, err := testutil.GatherAndCount(reg, "mockauth_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestMalformedBody(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.api.AuthURL+mockapi.RouteLogin, bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, _ := f.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
