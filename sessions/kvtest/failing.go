package kvtest

import (
	"errors"
	"sync"

	"github.com/jrsteele09/go-session-client/sessions"
)

// ErrInjected is returned by a FailingKV for keys set to fail.
var ErrInjected = errors.New("injected kv failure")

// FailingKV wraps a KV and fails Set for chosen keys.
type FailingKV struct {
	sessions.KV

	mu   sync.Mutex
	keys map[string]bool
}

func NewFailingKV(kv sessions.KV) *FailingKV {
	return &FailingKV{KV: kv, keys: make(map[string]bool)}
}

// FailSet makes Set return ErrInjected for key until Reset.
func (f *FailingKV) FailSet(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = true
}

func (f *FailingKV) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = make(map[string]bool)
}

func (f *FailingKV) Set(key, value string) error {
	f.mu.Lock()
	fail := f.keys[key]
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.KV.Set(key, value)
}
