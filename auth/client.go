package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-session-client/internal/broadcast"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/sessions"
)

// Auth API routes, relative to the auth base URL.
const (
	LoginRoute          = "/login"
	RegisterRoute       = "/register"
	RefreshTokenRoute   = "/refresh_token"
	SwitchCompanyRoute  = "/switch_company"
	VerifyPasswordRoute = "/verify-password"
)

// DefaultRole is assigned to registrations that do not name a role.
const DefaultRole = "ROLE_USER"

// PasswordVerifiedMessage is the only verify-password body that counts as success.
const PasswordVerifiedMessage = "Password verified"

// Notification texts.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgLoginFailed        = "Login failed"
	msgUserExists         = "User already exists"
	msgRegisterFailed     = "Registration failed"
	msgSessionExpired     = "Session expired. Please log in again."
	msgInvalidPassword    = "Invalid password"
	msgUnexpectedResponse = "Unexpected response from server"
)

const maxBodyBytes = 1 << 20

// TenantEvent is published whenever the active tenant changes. Present is
// false after logout or when the user has no memberships.
type TenantEvent struct {
	ID      int64
	Present bool
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of a registration. An empty Role becomes DefaultRole.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type switchRequest struct {
	CompanyID int64 `json:"companyId"`
}

type verifyRequest struct {
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Client performs the auth exchanges and owns every transition of the
// session store.
type Client struct {
	store      *sessions.Store
	baseURL    string
	httpClient *http.Client
	notifier   Notifier
	navigator  Navigator
	tenants    *broadcast.Broadcaster[TenantEvent]
	metrics    *metrics.Collector
	logger     zerolog.Logger
	refreshes  *singleflight.Group
}

type ClientOption func(*Client)

// WithHTTPClient sets the client used for auth exchanges. It should carry a
// cookie jar and must not be wrapped by the request authorizer.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) {
		c.notifier = n
	}
}

func WithNavigator(n Navigator) ClientOption {
	return func(c *Client) {
		c.navigator = n
	}
}

func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRefreshCoalescing makes concurrent Refresh calls share a single
// in-flight request.
func WithRefreshCoalescing(enabled bool) ClientOption {
	return func(c *Client) {
		if enabled {
			c.refreshes = &singleflight.Group{}
		} else {
			c.refreshes = nil
		}
	}
}

// NewClient returns a client for the auth API at baseURL (origin plus auth
// base path, e.g. http://localhost:8080/api/v2/auth).
func NewClient(store *sessions.Store, baseURL string, opts ...ClientOption) (*Client, error) {
	if store == nil {
		return nil, errors.New("[NewClient] store is required")
	}
	c := &Client{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		tenants: broadcast.NewWithValue(currentTenant(store)),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		hc, err := NewHTTPClient(0)
		if err != nil {
			return nil, errors.Wrap(err, "[NewClient] http client")
		}
		c.httpClient = hc
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	if c.navigator == nil {
		c.navigator = logNavigator{logger: c.logger}
	}
	return c, nil
}

// BaseURL returns the auth base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store returns the session store the client writes to.
func (c *Client) Store() *sessions.Store {
	return c.store
}

// Login exchanges credentials for a session and activates the first membership.
func (c *Client) Login(ctx context.Context, username, password string) (*sessions.Session, error) {
	resp, err := c.post(ctx, LoginRoute, loginRequest{Username: username, Password: password}, "")
	if err != nil {
		c.fail("login", msgLoginFailed)
		return nil, errors.Wrap(ErrUnexpected, err.Error())
	}
	if resp.status == http.StatusUnauthorized {
		c.fail("login", msgInvalidCredentials)
		return nil, errors.Wrap(ErrInvalidCredentials, "[Client.Login]")
	}
	payload, err := resp.payload()
	if err != nil {
		c.fail("login", msgLoginFailed)
		return nil, errors.Wrap(ErrUnexpected, "[Client.Login] "+err.Error())
	}

	session, err := c.establish(payload, nil)
	c.metrics.Exchange("login", err)
	if err != nil {
		c.notifier.Error(msgLoginFailed)
		return nil, errors.Wrap(err, "[Client.Login] establish session")
	}
	c.logger.Info().Str("username", session.Profile.Username).Msg("logged in")
	return session, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*sessions.Session, error) {
	if req.Role == "" {
		req.Role = DefaultRole
	}
	resp, err := c.post(ctx, RegisterRoute, req, "")
	if err != nil {
		c.fail("register", msgRegisterFailed)
		return nil, errors.Wrap(ErrUnexpected, err.Error())
	}
	if resp.status == http.StatusConflict {
		c.fail("register", msgUserExists)
		return nil, errors.Wrap(ErrDuplicateUser, "[Client.Register]")
	}
	payload, err := resp.payload()
	if err != nil {
		c.fail("register", msgRegisterFailed)
		return nil, errors.Wrap(ErrUnexpected, "[Client.Register] "+err.Error())
	}

	session, err := c.establish(payload, nil)
	c.metrics.Exchange("register", err)
	if err != nil {
		c.notifier.Error(msgRegisterFailed)
		return nil, errors.Wrap(err, "[Client.Register] establish session")
	}
	c.logger.Info().Str("username", session.Profile.Username).Msg("registered")
	return session, nil
}

// Refresh trades the refresh cookie for a new access token. Any failure ends
// the session. Refresh never retries.
func (c *Client) Refresh(ctx context.Context) (*sessions.Session, error) {
	if c.refreshes == nil {
		return c.refresh(ctx)
	}
	v, err, shared := c.refreshes.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if shared {
		c.logger.Debug().Msg("joined in-flight refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.(*sessions.Session), nil
}

func (c *Client) refresh(ctx context.Context) (*sessions.Session, error) {
	fail := func(reason error) (*sessions.Session, error) {
		c.logger.Err(reason).Msg("[Client.Refresh] refresh failed")
		c.fail("refresh", msgSessionExpired)
		c.Logout()
		return nil, errors.Wrap(ErrSessionExpired, reason.Error())
	}

	resp, err := c.post(ctx, RefreshTokenRoute, nil, "")
	if err != nil {
		return fail(err)
	}
	payload, err := resp.payload()
	if err != nil {
		return fail(err)
	}

	var keep *int64
	if id, ok := c.store.ActiveTenant(); ok {
		keep = utils.Ptr(id)
	}
	session, err := c.establish(payload, keep)
	if err != nil {
		return fail(err)
	}
	c.metrics.Exchange("refresh", nil)
	c.logger.Debug().Msg("access token refreshed")
	return session, nil
}

// SwitchTenant makes tenantID the active tenant. On failure nothing changes.
func (c *Client) SwitchTenant(ctx context.Context, tenantID int64) (*sessions.Session, error) {
	reject := func(reason string) (*sessions.Session, error) {
		c.fail("switch", "Company switch failed: "+reason)
		return nil, errors.Wrap(ErrSwitchFailed, reason)
	}

	accessToken, ok := c.store.GetToken()
	if !ok {
		return reject("not authenticated")
	}
	current, ok := c.store.Load()
	if !ok || !current.HasTenant(tenantID) {
		return reject(fmt.Sprintf("not a member of company %d", tenantID))
	}

	resp, err := c.post(ctx, SwitchCompanyRoute, switchRequest{CompanyID: tenantID}, accessToken)
	if err != nil {
		return reject(err.Error())
	}
	payload, err := resp.payload()
	if err != nil {
		return reject(resp.reason(err))
	}
	next := sessions.FromPayload(payload)
	membership, ok := next.Tenant(tenantID)
	if !ok {
		return reject(fmt.Sprintf("company %d missing from response", tenantID))
	}

	if err := c.store.SaveWithTenant(payload, tenantID); err != nil {
		c.logger.Err(err).Msg("[Client.SwitchTenant] persist session")
		return reject("could not save session")
	}
	next.ActiveTenantID = &tenantID
	c.publish(TenantEvent{ID: tenantID, Present: true})
	c.metrics.Exchange("switch", nil)

	name := payload.DefaultCompany
	if name == "" {
		name = membership.Name
	}
	c.notifier.Success("Switched to " + name)
	return next, nil
}

// VerifyPassword re-checks the password of the signed-in user. The bearer
// token is attached directly so a 401 here never triggers a refresh.
func (c *Client) VerifyPassword(ctx context.Context, password string) error {
	accessToken, ok := c.store.GetToken()
	if !ok {
		c.fail("verify", msgInvalidPassword)
		return errors.Wrap(ErrInvalidCredentials, "[Client.VerifyPassword] not authenticated")
	}

	resp, err := c.post(ctx, VerifyPasswordRoute, verifyRequest{Password: password}, accessToken)
	if err != nil {
		c.fail("verify", msgUnexpectedResponse)
		return errors.Wrap(ErrUnexpected, err.Error())
	}

	var body messageResponse
	_ = json.Unmarshal(resp.body, &body)

	switch {
	case resp.ok() && body.Message == PasswordVerifiedMessage:
		c.metrics.Exchange("verify", nil)
		return nil
	case resp.ok():
		c.fail("verify", msgUnexpectedResponse)
		return errors.Wrapf(ErrUnexpected, "[Client.VerifyPassword] message %q", body.Message)
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		message := body.Message
		if message == "" {
			message = msgInvalidPassword
		}
		c.fail("verify", message)
		return errors.Wrap(ErrInvalidCredentials, "[Client.VerifyPassword]")
	default:
		c.fail("verify", msgUnexpectedResponse)
		return errors.Wrapf(ErrUnexpected, "[Client.VerifyPassword] status %d", resp.status)
	}
}

// Logout clears the session scope and the active tenant, publishes an absent
// tenant and navigates to the entry view. The lock flag is left alone. When
// already signed out only the navigation happens.
func (c *Client) Logout() {
	_, hasTenant := c.store.ActiveTenant()
	if !c.store.IsAuthenticated() && !hasTenant {
		c.navigator.NavigateToEntry()
		return
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Err(err).Msg("[Client.Logout] clear session")
	}
	if err := c.store.ClearActiveTenant(); err != nil {
		c.logger.Err(err).Msg("[Client.Logout] clear active tenant")
	}
	c.publish(TenantEvent{})
	c.navigator.NavigateToEntry()
}

// Subscribe streams active tenant changes, starting with the current one.
// Call cancel to stop.
func (c *Client) Subscribe() (<-chan TenantEvent, func()) {
	return c.tenants.Subscribe()
}

func (c *Client) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

func (c *Client) GetAccessToken() (string, bool) {
	return c.store.GetToken()
}

func (c *Client) GetUserData() (*sessions.Session, bool) {
	return c.store.Load()
}

func (c *Client) ActiveTenant() (int64, bool) {
	return c.store.ActiveTenant()
}

// establish persists payload and picks the active tenant: keep when it is
// still a membership, otherwise the first membership.
func (c *Client) establish(payload *sessions.Payload, keep *int64) (*sessions.Session, error) {
	session := sessions.FromPayload(payload)

	active, ok := sessions.TenantMembership{}, false
	if keep != nil {
		active, ok = session.Tenant(*keep)
	}
	if !ok {
		active, ok = session.FirstTenant()
	}

	if !ok {
		if err := c.store.Save(payload); err != nil {
			return nil, err
		}
		if err := c.store.ClearActiveTenant(); err != nil {
			c.logger.Err(err).Msg("[Client.establish] clear active tenant")
		}
		c.publish(TenantEvent{})
		return session, nil
	}
	if err := c.store.SaveWithTenant(payload, active.ID); err != nil {
		return nil, err
	}
	session.ActiveTenantID = &active.ID
	c.publish(TenantEvent{ID: active.ID, Present: true})
	return session, nil
}

func currentTenant(store *sessions.Store) TenantEvent {
	if !store.IsAuthenticated() {
		return TenantEvent{}
	}
	if id, ok := store.ActiveTenant(); ok {
		return TenantEvent{ID: id, Present: true}
	}
	return TenantEvent{}
}

func (c *Client) publish(event TenantEvent) {
	c.tenants.Publish(event)
	c.metrics.TenantEvent()
}

func (c *Client) fail(operation, message string) {
	c.metrics.Exchange(operation, ErrUnexpected)
	c.notifier.Error(message)
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// payload decodes a successful exchange body. Non-2xx statuses, undecodable
// bodies and empty tokens are errors.
func (r *response) payload() (*sessions.Payload, error) {
	if !r.ok() {
		return nil, fmt.Errorf("status %d", r.status)
	}
	var p sessions.Payload
	if err := json.Unmarshal(r.body, &p); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	if p.AccessToken == "" {
		return nil, sessions.ErrEmptyToken
	}
	return &p, nil
}

// reason describes a failed exchange using the server message when present.
func (r *response) reason(err error) string {
	var body messageResponse
	if json.Unmarshal(r.body, &body) == nil && body.Message != "" {
		return body.Message
	}
	if !r.ok() {
		return http.StatusText(r.status)
	}
	return err.Error()
}

// post sends body as JSON. Exchanges are detached from ctx cancellation so a
// response that arrives after the caller gave up still commits; the HTTP
// client timeout bounds them.
func (c *Client) post(ctx context.Context, route string, body any, bearer string) (*response, error) {
	ctx = context.WithoutCancel(ctx)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.post] marshal body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.post] %s", route)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.post] read %s", route)
	}
	return &response{status: res.StatusCode, body: data}, nil
}
