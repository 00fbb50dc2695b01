package refresh

import "time"

// StoredRefreshToken is the server-side record behind a refresh cookie. The
// client only ever sees Token.
type StoredRefreshToken struct {
	Token     string
	UserID    string
	CompanyID int64 // active company when the token was issued
	Iat       time.Time
}

// Repo stores refresh token metadata keyed by the token string.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
