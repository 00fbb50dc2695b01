// Package guard decides whether a protected view may be entered.
package guard

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/token"
)

var ErrAccessDenied = errors.New("access denied")

// Session is the part of the auth client the gate reads.
type Session interface {
	IsAuthenticated() bool
	GetAccessToken() (string, bool)
	Refresh(ctx context.Context) (*sessions.Session, error)
}

// Gate allows a view only while the session holds a usable access token.
type Gate struct {
	session   Session
	navigator auth.Navigator
	logger    zerolog.Logger
}

type Option func(*Gate)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func New(session Session, navigator auth.Navigator, opts ...Option) *Gate {
	g := &Gate{
		session:   session,
		navigator: navigator,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanActivate allows a valid token, refreshes an expired one and denies
// everything else. Denials navigate to the entry view. Undecodable tokens
// count as expired.
func (g *Gate) CanActivate(ctx context.Context) bool {
	raw, ok := g.session.GetAccessToken()
	if !ok || !g.session.IsAuthenticated() {
		g.deny("not authenticated")
		return false
	}
	if !token.IsExpired(raw) {
		return true
	}

	if _, err := g.session.Refresh(ctx); err != nil {
		g.logger.Err(err).Msg("[Gate.CanActivate] refresh failed")
		g.deny("refresh failed")
		return false
	}
	return true
}

// Protect runs action only when CanActivate allows it.
func (g *Gate) Protect(action func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !g.CanActivate(ctx) {
			return ErrAccessDenied
		}
		return action(ctx)
	}
}

func (g *Gate) deny(reason string) {
	g.logger.Debug().Str("reason", reason).Msg("gate denied")
	if g.navigator != nil {
		g.navigator.NavigateToEntry()
	}
}
