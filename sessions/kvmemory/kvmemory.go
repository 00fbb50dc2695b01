// Package kvmemory is an in-process session backend.
package kvmemory

import (
	"strings"
	"sync"

	"github.com/jrsteele09/go-session-client/sessions"
)

var (
	_ sessions.KV      = (*Store)(nil)
	_ sessions.Backend = (*Store)(nil)
)

type Store struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (m *Store) Get(key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Store) Set(key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.values[key] = value
	return nil
}

func (m *Store) Delete(keys ...string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *Store) DeletePrefix(prefix string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			delete(m.values, k)
		}
	}
	return nil
}

func (m *Store) Clear() error {
	return m.DeletePrefix("")
}

// Len reports the number of stored keys.
func (m *Store) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.values)
}
