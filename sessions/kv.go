package sessions

import "errors"

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("kv store closed")

// KV is a string key/value scope. The store uses one instance for
// session-scoped keys and one for durable keys.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)

	// Set writes value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(keys ...string) error

	// Clear removes every key in this scope.
	Clear() error
}

// Backend is a flat key space that can be split into scopes with Namespace.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	DeletePrefix(prefix string) error
}

type namespace struct {
	backend Backend
	prefix  string
}

// Namespace returns a KV whose keys live under prefix in backend. Clear only
// removes keys under that prefix.
func Namespace(backend Backend, prefix string) KV {
	return &namespace{backend: backend, prefix: prefix}
}

func (n *namespace) Get(key string) (string, bool, error) {
	return n.backend.Get(n.prefix + key)
}

func (n *namespace) Set(key, value string) error {
	return n.backend.Set(n.prefix+key, value)
}

func (n *namespace) Delete(keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = n.prefix + k
	}
	return n.backend.Delete(prefixed...)
}

func (n *namespace) Clear() error {
	return n.backend.DeletePrefix(n.prefix)
}
