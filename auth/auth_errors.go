package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrSessionExpired     = errors.New("session expired")
	ErrSwitchFailed       = errors.New("company switch failed")
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	ErrUnexpected         = errors.New("unexpected auth response")
)
