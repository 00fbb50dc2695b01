package config

import "time"

type APIConfig interface {
	GetAPIBaseURL() string
	GetAuthBasePath() string
	GetHTTPTimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the origin of the application's own API surface
// (e.g. "http://localhost:8080"). Only requests to this origin are authorized.
func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8080")
}

func (API) GetAuthBasePath() string {
	return GetEnv("AUTH_BASE_PATH", "/api/v2/auth")
}

func (API) GetHTTPTimeout() time.Duration {
	return GetDuration("HTTP_TIMEOUT", 30*time.Second)
}
