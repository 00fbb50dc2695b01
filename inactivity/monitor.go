// Package inactivity locks the session after a period without user input and
// logs the user out after a longer one.
package inactivity

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/internal/broadcast"
	"github.com/jrsteele09/go-session-client/internal/metrics"
)

const (
	DefaultLockAfter   = 5 * time.Minute
	DefaultLogoutAfter = 15 * time.Minute
	DefaultDebounce    = 100 * time.Millisecond
)

type State int

const (
	Active State = iota
	Locked
)

func (s State) String() string {
	if s == Locked {
		return "locked"
	}
	return "active"
}

// Kind is a qualifying user input event.
type Kind int

const (
	PointerMove Kind = iota
	KeyPress
	Click
	Scroll
)

// Session is the part of the auth client the monitor drives.
type Session interface {
	IsAuthenticated() bool
	VerifyPassword(ctx context.Context, password string) error
	Logout()
}

// LockStore persists the lock flag across restarts.
type LockStore interface {
	Locked() bool
	SetLocked(locked bool) error
}

// Monitor tracks idle time. It is Active until the lock timer fires and
// Locked until Unlock or Reset. The logout timer runs independently.
type Monitor struct {
	session     Session
	store       LockStore
	clock       Clock
	lockAfter   time.Duration
	logoutAfter time.Duration
	debounce    time.Duration
	metrics     *metrics.Collector
	logger      zerolog.Logger
	states      *broadcast.Broadcaster[State]

	mu          sync.Mutex
	state       State
	started     bool
	stopped     bool
	lockTimer   Timer
	logoutTimer Timer
	settleTimer Timer
	timerGen    uint64 // invalidates lock and logout timers that already fired
	settleGen   uint64
}

type Option func(*Monitor)

func WithClock(clock Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

func WithLockAfter(d time.Duration) Option {
	return func(m *Monitor) {
		m.lockAfter = d
	}
}

// WithLogoutAfter sets the idle logout threshold. Zero disables idle logout.
func WithLogoutAfter(d time.Duration) Option {
	return func(m *Monitor) {
		m.logoutAfter = d
	}
}

func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		m.debounce = d
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) {
		m.metrics = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func New(session Session, store LockStore, opts ...Option) *Monitor {
	m := &Monitor{
		session:     session,
		store:       store,
		clock:       SystemClock{},
		lockAfter:   DefaultLockAfter,
		logoutAfter: DefaultLogoutAfter,
		debounce:    DefaultDebounce,
		logger:      zerolog.Nop(),
		states:      broadcast.New[State](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start restores the persisted lock when the user is still authenticated,
// clears a stale flag otherwise, and arms the idle timers.
func (m *Monitor) Start() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return m.state
	}
	m.started = true

	if m.store.Locked() && m.session.IsAuthenticated() {
		m.state = Locked
		m.logger.Info().Msg("restored locked state")
	} else {
		m.state = Active
		if err := m.store.SetLocked(false); err != nil {
			m.logger.Err(err).Msg("[Monitor.Start] clear lock flag")
		}
	}
	m.armLocked()
	m.states.Publish(m.state)
	return m.state
}

// Stop cancels every timer and closes subscriptions.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	m.stopTimersLocked()
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	m.states.Close()
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe streams lock state changes. Call cancel to stop.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	return m.states.Subscribe()
}

// Activity records a user input event. The idle timers restart once the
// debounce window passes without further events. Input while Locked is
// ignored; only Unlock or Reset leave that state.
func (m *Monitor) Activity(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.stopped || m.state == Locked {
		return
	}
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	m.settleGen++
	gen := m.settleGen
	m.settleTimer = m.clock.AfterFunc(m.debounce, func() { m.settle(gen) })
}

// Watch feeds events into Activity until ctx is done or events is closed.
func (m *Monitor) Watch(ctx context.Context, events <-chan Kind) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-events:
			if !ok {
				return
			}
			m.Activity(kind)
		}
	}
}

// Unlock verifies password with the auth API. On success the monitor is
// Active again and the idle timers restart. On failure it stays Locked.
func (m *Monitor) Unlock(ctx context.Context, password string) error {
	if m.State() != Locked {
		return nil
	}
	if err := m.session.VerifyPassword(ctx, password); err != nil {
		return errors.Wrap(err, "[Monitor.Unlock]")
	}
	m.activate("unlocked")
	return nil
}

// Reset forces Active without re-authentication.
func (m *Monitor) Reset() {
	m.activate("reset")
}

func (m *Monitor) activate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if err := m.store.SetLocked(false); err != nil {
		m.logger.Err(err).Msg("[Monitor.activate] clear lock flag")
	}
	changed := m.state != Active
	m.state = Active
	m.armLocked()
	if changed {
		m.logger.Info().Str("reason", reason).Msg("session active")
		m.states.Publish(Active)
	}
}

func (m *Monitor) settle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.settleGen || m.stopped || m.state == Locked {
		return
	}
	m.armLocked()
}

// armLocked restarts the lock timer (only while Active) and the logout timer.
func (m *Monitor) armLocked() {
	m.stopTimersLocked()
	m.timerGen++
	gen := m.timerGen

	if m.state == Active && m.lockAfter > 0 {
		m.lockTimer = m.clock.AfterFunc(m.lockAfter, func() { m.onLock(gen) })
	}
	if m.logoutAfter > 0 {
		m.logoutTimer = m.clock.AfterFunc(m.logoutAfter, func() { m.onLogout(gen) })
	}
}

func (m *Monitor) stopTimersLocked() {
	if m.lockTimer != nil {
		m.lockTimer.Stop()
		m.lockTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
}

func (m *Monitor) onLock(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.timerGen || m.stopped || m.state == Locked || !m.session.IsAuthenticated() {
		return
	}
	m.state = Locked
	if err := m.store.SetLocked(true); err != nil {
		m.logger.Err(err).Msg("[Monitor.onLock] persist lock flag")
	}
	m.metrics.Lock()
	m.logger.Info().Dur("idle", m.lockAfter).Msg("session locked")
	m.states.Publish(Locked)
}

func (m *Monitor) onLogout(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.stopped || !m.session.IsAuthenticated() {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.metrics.IdleLogout()
	m.logger.Info().Dur("idle", m.logoutAfter).Msg("idle logout")
	m.session.Logout()
}
