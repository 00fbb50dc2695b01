// Package kvbadger stores session keys in a badger database so they outlive
// the process.
package kvbadger

import (
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/sessions"
)

var (
	_ sessions.KV      = (*Store)(nil)
	_ sessions.Backend = (*Store)(nil)
)

type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger.With().Str("component", "badger").Logger()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "[kvbadger.Open] open db")
	}
	return &Store{db: db}, nil
}

func (b *Store) Get(key string) (string, bool, error) {
	if b.closed.Load() {
		return "", false, sessions.ErrClosed
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[Store.Get] view")
	}
	return string(value), true, nil
}

func (b *Store) Set(key, value string) error {
	if b.closed.Load() {
		return sessions.ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (b *Store) Delete(keys ...string) error {
	if b.closed.Load() {
		return sessions.ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePrefix removes every key under prefix inside a single transaction.
func (b *Store) DeletePrefix(prefix string) error {
	if b.closed.Load() {
		return sessions.ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Store) Clear() error {
	return b.DeletePrefix("")
}

func (b *Store) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// badgerLogger routes badger's internal logging to zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}
