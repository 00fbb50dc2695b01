// Package authorizer attaches the session bearer token to application API
// requests and recovers from a single 401 by refreshing the token.
package authorizer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/sessions"
)

// Session is the part of the auth client the transport drives.
type Session interface {
	Refresh(ctx context.Context) (*sessions.Session, error)
	Logout()
}

// Transport is an http.RoundTripper for the application API.
type Transport struct {
	base    http.RoundTripper
	source  oauth2.TokenSource
	session Session
	origin  *url.URL
	exclude []string
	metrics *metrics.Collector
	logger  zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

// WithBase sets the transport requests are sent on. Defaults to
// http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithExcludedPaths replaces the path prefixes that are never authorized.
func WithExcludedPaths(prefixes ...string) Option {
	return func(t *Transport) {
		t.exclude = prefixes
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New authorizes requests addressed to apiOrigin (scheme and host of the
// application API). authBasePath is excluded by default so auth exchanges are
// never retried.
func New(apiOrigin, authBasePath string, source oauth2.TokenSource, session Session, opts ...Option) (*Transport, error) {
	origin, err := url.Parse(apiOrigin)
	if err != nil {
		return nil, errors.Wrap(err, "[authorizer.New] parse origin")
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, errors.Errorf("[authorizer.New] origin %q needs a scheme and host", apiOrigin)
	}
	if source == nil || session == nil {
		return nil, errors.New("[authorizer.New] token source and session are required")
	}
	t := &Transport{
		base:    http.DefaultTransport,
		source:  source,
		session: session,
		origin:  origin,
		logger:  zerolog.Nop(),
	}
	if authBasePath != "" {
		t.exclude = []string{authBasePath}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Client returns an http.Client that sends through t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.applies(req.URL) {
		return t.base.RoundTrip(req)
	}

	replay, err := replayable(req)
	if err != nil {
		return nil, err
	}

	first := t.authorize(replay.clone())
	replay.closeOriginal(first)
	res, err := t.base.RoundTrip(first)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	drain(res)

	t.logger.Debug().Str("path", req.URL.Path).Msg("401 from API, refreshing token")
	if _, err := t.session.Refresh(req.Context()); err != nil {
		t.metrics.Retry(err)
		t.logger.Err(err).Msg("[Transport.RoundTrip] refresh failed")
		t.session.Logout()
		return nil, errors.Wrap(auth.ErrTokenRefreshFailed, err.Error())
	}

	res, err = t.base.RoundTrip(t.authorize(replay.clone()))
	t.metrics.Retry(err)
	return res, err
}

// applies reports whether u is on the API origin and outside the excluded
// paths.
func (t *Transport) applies(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, t.origin.Scheme) || !strings.EqualFold(u.Host, t.origin.Host) {
		return false
	}
	for _, prefix := range t.exclude {
		if strings.HasPrefix(u.Path, prefix) {
			return false
		}
	}
	return true
}

// authorize sets the bearer header from the current token. Without a token
// the request goes out with whatever headers the caller set.
func (t *Transport) authorize(req *http.Request) *http.Request {
	tok, err := t.source.Token()
	if err != nil {
		return req
	}
	tok.SetAuthHeader(req)
	return req
}

// replay keeps a request and its body so it can be sent more than once.
type replay struct {
	req  *http.Request
	body []byte
}

func replayable(req *http.Request) (*replay, error) {
	r := &replay{req: req}
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return r, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "[Transport.RoundTrip] buffer body")
	}
	r.body = data
	return r, nil
}

// closeOriginal closes the caller's body once sent carries its own copy.
// Buffered bodies were closed while buffering.
func (r *replay) closeOriginal(sent *http.Request) {
	body := r.req.Body
	if r.body != nil || body == nil || body == http.NoBody || sent.Body == body {
		return
	}
	_ = body.Close()
}

// clone returns a copy of the original request with a fresh body. The
// caller's request is never modified.
func (r *replay) clone() *http.Request {
	out := r.req.Clone(r.req.Context())
	switch {
	case r.body != nil:
		out.Body = io.NopCloser(bytes.NewReader(r.body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(r.body)), nil
		}
		out.ContentLength = int64(len(r.body))
	case r.req.GetBody != nil:
		if body, err := r.req.GetBody(); err == nil {
			out.Body = body
		}
	}
	return out
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	_ = res.Body.Close()
}
