package config

import "time"

type SessionConfig interface {
	GetIdleLockAfter() time.Duration
	GetIdleLogoutAfter() time.Duration
	GetIdleDebounce() time.Duration
	GetRefreshCoalescing() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetIdleLockAfter() time.Duration {
	return GetDuration("IDLE_LOCK_AFTER", 5*time.Minute)
}

// GetIdleLogoutAfter returns the idle duration after which an authenticated
// user is logged out regardless of lock state. Zero disables idle logout.
func (Session) GetIdleLogoutAfter() time.Duration {
	return GetDuration("IDLE_LOGOUT_AFTER", 15*time.Minute)
}

func (Session) GetIdleDebounce() time.Duration {
	return GetDuration("IDLE_DEBOUNCE", 100*time.Millisecond)
}

func (Session) GetRefreshCoalescing() bool {
	return GetBool("REFRESH_COALESCE", false) // Concurrent 401s refresh independently by default
}
