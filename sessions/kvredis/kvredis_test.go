package kvredis_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/sessions/kvredis"
	"github.com/jrsteele09/go-session-client/sessions/kvtest"
)

func newStore(t *testing.T, mr *miniredis.Miniredis, prefix string) *kvredis.Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kvredis.New(client, prefix)
}

func TestBackend(t *testing.T) {
	kvtest.RunBackend(t, func(t *testing.T) sessions.Backend {
		return newStore(t, miniredis.RunT(t), "test")
	})
}

func TestKeysArePrefixed(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr, "sessionctl")

	require.NoError(t, s.Set("durable/isLocked", "true"))
	v, err := mr.Get("sessionctl:durable/isLocked")
	require.NoError(t, err)
	require.Equal(t, "true", v)
}

func TestClearLeavesOtherPrefixes(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newStore(t, mr, "a")
	b := newStore(t, mr, "b")

	for i := 0; i < 250; i++ {
		require.NoError(t, a.Set("k"+string(rune('a'+i%26))+string(rune('0'+i/26)), "v"))
	}
	require.NoError(t, b.Set("k", "v"))

	require.NoError(t, a.Clear())
	require.Equal(t, []string{"b:k"}, mr.Keys())
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := kvredis.Dial(mr.Addr(), "", 0, "dial")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Set("k", "v"))
	require.True(t, mr.Exists("dial:k"))

	mr.Close()
	_, err = kvredis.Dial(mr.Addr(), "", 0, "dial")
	require.Error(t, err)
}
