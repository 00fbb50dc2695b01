package token

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	// ErrDecodeFailure marks a token whose payload could not be decoded. It is
	// only ever used to fail closed and is never shown to the user.
	ErrDecodeFailure = errors.New("token decode failure")
	// ErrNoExpiry marks a decodable token without an exp claim.
	ErrNoExpiry = errors.New("token has no expiry claim")
)

var parser = jwt.NewParser()

// Decode returns the claims in the payload segment of a bearer token. The
// header and signature are not inspected; verification belongs to the
// issuing server.
func Decode(rawToken string) (jwt.MapClaims, error) {
	parts := strings.Split(strings.TrimSpace(rawToken), ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, ErrDecodeFailure
	}
	data, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, errors.Join(ErrDecodeFailure, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, errors.Join(ErrDecodeFailure, err)
	}
	return claims, nil
}

// Expiry returns the exp claim of rawToken.
func Expiry(rawToken string) (time.Time, error) {
	claims, err := Decode(rawToken)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Join(ErrDecodeFailure, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// IsExpired reports whether rawToken is past its exp claim. Tokens that
// cannot be decoded, or that carry no exp claim, are treated as expired.
func IsExpired(rawToken string) bool {
	exp, err := Expiry(rawToken)
	if err != nil {
		return true
	}
	return exp.Before(NowTimeFunc())
}

// Subject returns the sub claim, or "" when absent or undecodable.
func Subject(rawToken string) string {
	claims, err := Decode(rawToken)
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
