// Package refresh issues and rotates the opaque refresh tokens carried in the
// mock API's refresh cookie.
package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const tokenLength = 32

var (
	ErrInvalid = errors.New("invalid refresh token")
	ErrExpired = errors.New("refresh token expired")
)

// Manager handles refresh token creation, validation and rotation.
type Manager struct {
	repo Repo
	ttl  time.Duration
}

func NewManager(repo Repo, ttl time.Duration) *Manager {
	return &Manager{
		repo: repo,
		ttl:  ttl,
	}
}

// Create stores a new token for userID, replacing any previous one.
func (m *Manager) Create(userID string, companyID int64) (string, error) {
	if existing, err := m.repo.GetByUserID(userID); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		CompanyID: companyID,
		Iat:       NowTimeFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokenStr, nil
}

// Validate returns the record for token when it exists and has not expired.
// Expired tokens are deleted.
func (m *Manager) Validate(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, ErrInvalid
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, ErrExpired
	}
	return rt, nil
}

// Rotate replaces token with a fresh one for the same user.
func (m *Manager) Rotate(token string, companyID int64) (string, *StoredRefreshToken, error) {
	rt, err := m.Validate(token)
	if err != nil {
		return "", nil, err
	}
	next, err := m.Create(rt.UserID, companyID)
	if err != nil {
		return "", nil, err
	}
	return next, rt, nil
}

func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return NowTimeFunc().Sub(rt.Iat) > m.ttl
}
