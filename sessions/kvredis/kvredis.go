// Package kvredis keeps session keys in redis so several processes can share
// one session.
package kvredis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-session-client/sessions"
)

const DefaultOpTimeout = 2 * time.Second

var (
	_ sessions.KV      = (*Store)(nil)
	_ sessions.Backend = (*Store)(nil)
)

// Store maps keys to redis strings under a fixed prefix.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

type Option func(*Store)

func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.opTimeout = d
	}
}

// New wraps client. Every key is stored as prefix + ":" + key.
func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    prefix + ":",
		opTimeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it before returning.
func Dial(addr, password string, db int, prefix string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), DefaultOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "[kvredis.Dial] ping %s", addr)
	}
	return New(client, prefix, opts...), nil
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[Store.Get] get")
	}
	return v, true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	return errors.Wrap(s.client.Set(ctx, s.prefix+key, value, 0).Err(), "[Store.Set] set")
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return errors.Wrap(s.client.Del(ctx, prefixed...).Err(), "[Store.Delete] del")
}

// DeletePrefix scans for keys under prefix and deletes them in batches.
func (s *Store) DeletePrefix(prefix string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.prefix+prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return errors.Wrap(err, "[Store.DeletePrefix] del")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "[Store.DeletePrefix] scan")
	}
	if len(batch) > 0 {
		return errors.Wrap(s.client.Del(ctx, batch...).Err(), "[Store.DeletePrefix] del")
	}
	return nil
}

func (s *Store) Clear() error {
	return s.DeletePrefix("")
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}
