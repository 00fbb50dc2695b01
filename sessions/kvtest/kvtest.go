// Package kvtest holds the behaviour every sessions.Backend must share.
package kvtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/sessions"
)

// RunBackend exercises newBackend against the sessions.Backend contract.
// Each subtest gets a fresh backend.
func RunBackend(t *testing.T, newBackend func(t *testing.T) sessions.Backend) {
	t.Run("get missing", func(t *testing.T) {
		b := newBackend(t)
		v, ok, err := b.Get("missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set("k", "one"))
		require.NoError(t, b.Set("k", "two"))
		v, ok, err := b.Get("k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "two", v)
	})

	t.Run("delete ignores missing keys", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set("a", "1"))
		require.NoError(t, b.Delete("a", "never-set"))
		_, ok, err := b.Get("a")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete prefix keeps other keys", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set("session/x/access_token", "tok"))
		require.NoError(t, b.Set("session/x/user", "{}"))
		require.NoError(t, b.Set("durable/isLocked", "true"))

		require.NoError(t, b.DeletePrefix("session/x/"))

		_, ok, err := b.Get("session/x/access_token")
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = b.Get("session/x/user")
		require.NoError(t, err)
		require.False(t, ok)
		v, ok, err := b.Get("durable/isLocked")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "true", v)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		b := newBackend(t)
		session := sessions.Namespace(b, "session/")
		durable := sessions.Namespace(b, "durable/")

		require.NoError(t, session.Set(sessions.KeyAccessToken, "tok"))
		require.NoError(t, durable.Set(sessions.KeySelectedCompany, "7"))
		require.NoError(t, session.Clear())

		_, ok, err := session.Get(sessions.KeyAccessToken)
		require.NoError(t, err)
		require.False(t, ok)
		v, ok, err := durable.Get(sessions.KeySelectedCompany)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "7", v)
	})
}
