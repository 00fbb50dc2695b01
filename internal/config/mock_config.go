package config

import "time"

// MockConfig configures the standalone mock auth API (cmd/mockauth).
type MockConfig interface {
	GetMockJWTSecret() string
	GetMockAccessTokenTTL() time.Duration
	GetMockRefreshTokenTTL() time.Duration
	GetMockSeedUsers() bool
}

type Mock struct{}

var _ MockConfig = Mock{}

func (Mock) GetMockJWTSecret() string {
	return GetEnv("MOCK_JWT_SECRET", "dev-secret-change-me")
}

func (Mock) GetMockAccessTokenTTL() time.Duration {
	return GetDuration("MOCK_ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (Mock) GetMockRefreshTokenTTL() time.Duration {
	return GetDuration("MOCK_REFRESH_TOKEN_TTL", 7*24*time.Hour) // 7 days
}

func (Mock) GetMockSeedUsers() bool {
	return GetBool("MOCK_SEED_USERS", true)
}
