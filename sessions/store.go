package sessions

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-session-client/token"
)

// Session scope keys, cleared on logout.
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
)

// Durable scope keys, survive logout.
const (
	KeySelectedCompany = "selectedCompanyId"
	KeyLocked          = "isLocked"
	KeyTheme           = "theme"
)

var (
	ErrNoToken    = errors.New("no access token")
	ErrEmptyToken = errors.New("payload has no access token")
)

var _ oauth2.TokenSource = (*Store)(nil)

// Store is the single owner of session state. All readers and writers share
// one instance.
type Store struct {
	session KV
	durable KV
	logger  zerolog.Logger
	lock    sync.RWMutex
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns a store writing session-scoped keys to session and
// durable keys to durable.
func NewStore(session, durable KV, opts ...StoreOption) *Store {
	s := &Store{
		session: session,
		durable: durable,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save overwrites the token and user payload. The active tenant is left alone.
// On failure the previous values are restored.
func (s *Store) Save(payload *Payload) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	return errors.Wrap(s.writeLocked(
		write{s.session, KeyUser, data},
		write{s.session, KeyAccessToken, payload.AccessToken},
	), "[Store.Save]")
}

// SaveWithTenant saves payload and makes tenantID the active tenant as one
// change. On failure the previous payload, token and tenant are restored.
func (s *Store) SaveWithTenant(payload *Payload, tenantID int64) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	return errors.Wrap(s.writeLocked(
		write{s.session, KeyUser, data},
		write{s.session, KeyAccessToken, payload.AccessToken},
		write{s.durable, KeySelectedCompany, strconv.FormatInt(tenantID, 10)},
	), "[Store.SaveWithTenant]")
}

func encodePayload(payload *Payload) (string, error) {
	if payload == nil || payload.AccessToken == "" {
		return "", ErrEmptyToken
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "[Store.Save] marshal payload")
	}
	return string(data), nil
}

type write struct {
	kv    KV
	key   string
	value string
}

type previous struct {
	write
	existed bool
}

// writeLocked applies writes in order. When one fails, every key touched so
// far is put back to its earlier value or removed.
func (s *Store) writeLocked(writes ...write) error {
	saved := make([]previous, 0, len(writes))
	for _, w := range writes {
		old, ok, err := w.kv.Get(w.key)
		if err != nil {
			return errors.Wrapf(err, "read %s", w.key)
		}
		saved = append(saved, previous{write: write{w.kv, w.key, old}, existed: ok})
	}

	for i, w := range writes {
		if err := w.kv.Set(w.key, w.value); err != nil {
			s.rollbackLocked(saved[:i+1])
			return errors.Wrapf(err, "write %s", w.key)
		}
	}
	return nil
}

func (s *Store) rollbackLocked(saved []previous) {
	for i := len(saved) - 1; i >= 0; i-- {
		p := saved[i]
		var err error
		if p.existed {
			err = p.kv.Set(p.key, p.value)
		} else {
			err = p.kv.Delete(p.key)
		}
		if err != nil {
			s.logger.Err(err).Str("key", p.key).Msg("[Store] rollback")
		}
	}
}

// Load returns the saved session with the active tenant applied when it is
// still a membership.
func (s *Store) Load() (*Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	raw, ok, err := s.session.Get(KeyUser)
	if err != nil {
		s.logger.Err(err).Msg("[Store.Load] read user")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.logger.Err(err).Msg("[Store.Load] corrupt user payload")
		return nil, false
	}
	if tok, ok := s.tokenLocked(); ok {
		payload.AccessToken = tok
	}

	session := FromPayload(&payload)
	if id, ok := s.activeTenantLocked(); ok && session.HasTenant(id) {
		session.ActiveTenantID = &id
	}
	return session, true
}

// Clear removes all session-scoped keys.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return errors.Wrap(s.session.Clear(), "[Store.Clear] clear session scope")
}

func (s *Store) GetToken() (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.tokenLocked()
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.GetToken()
	return ok
}

// Token implements oauth2.TokenSource. Expiry is left zero when the token
// cannot be decoded.
func (s *Store) Token() (*oauth2.Token, error) {
	raw, ok := s.GetToken()
	if !ok {
		return nil, ErrNoToken
	}
	t := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, err := token.Expiry(raw); err == nil {
		t.Expiry = exp
	}
	return t, nil
}

func (s *Store) ActiveTenant() (int64, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.activeTenantLocked()
}

func (s *Store) SetActiveTenant(tenantID int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	err := s.durable.Set(KeySelectedCompany, strconv.FormatInt(tenantID, 10))
	return errors.Wrap(err, "[Store.SetActiveTenant] write tenant")
}

func (s *Store) ClearActiveTenant() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return errors.Wrap(s.durable.Delete(KeySelectedCompany), "[Store.ClearActiveTenant] delete tenant")
}

// Locked reports the persisted lock flag.
func (s *Store) Locked() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok, err := s.durable.Get(KeyLocked)
	if err != nil {
		s.logger.Err(err).Msg("[Store.Locked] read lock flag")
		return false
	}
	return ok && v == "true"
}

// SetLocked persists the lock flag. false removes the key.
func (s *Store) SetLocked(locked bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if locked {
		return errors.Wrap(s.durable.Set(KeyLocked, "true"), "[Store.SetLocked] write lock flag")
	}
	return errors.Wrap(s.durable.Delete(KeyLocked), "[Store.SetLocked] delete lock flag")
}

func (s *Store) tokenLocked() (string, bool) {
	tok, ok, err := s.session.Get(KeyAccessToken)
	if err != nil {
		s.logger.Err(err).Msg("[Store.GetToken] read token")
		return "", false
	}
	return tok, ok && tok != ""
}

func (s *Store) activeTenantLocked() (int64, bool) {
	v, ok, err := s.durable.Get(KeySelectedCompany)
	if err != nil {
		s.logger.Err(err).Msg("[Store.ActiveTenant] read tenant")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", v).Msg("[Store.ActiveTenant] ignoring malformed tenant id")
		return 0, false
	}
	return id, true
}
