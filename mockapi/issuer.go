package mockapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Signer signs access tokens and hands out the key to verify them.
type Signer interface {
	Sign(claims jwtlib.MapClaims) (string, error)
	GetVerificationKey(token *jwtlib.Token) (any, error)
	GetSigningMethod() jwtlib.SigningMethod
}

// HMACSigner implements Signer with a shared secret and HS256.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Sign(claims jwtlib.MapClaims) (string, error) {
	signed, err := jwtlib.NewWithClaims(s.GetSigningMethod(), claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *HMACSigner) GetVerificationKey(token *jwtlib.Token) (any, error) {
	if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *HMACSigner) GetSigningMethod() jwtlib.SigningMethod {
	return jwtlib.SigningMethodHS256
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	Username  string
	CompanyID int64
	Roles     []string
	ExpiresAt time.Time
	JTI       string
}

// Issuer creates and verifies access tokens.
type Issuer struct {
	signer Signer
	issuer string
}

func NewIssuer(signer Signer, issuer string) *Issuer {
	return &Issuer{signer: signer, issuer: issuer}
}

// CreateAccessToken issues a token for user acting as companyID that expires
// after ttl. A non-positive ttl yields an already expired token.
func (i *Issuer) CreateAccessToken(user *users.User, companyID int64, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":      i.issuer,
		"sub":      user.ID,
		"username": user.Username,
		"company":  companyID,
		"roles":    user.Roles,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"jti":      uuid.New().String(),
	}
	return i.signer.Sign(claims)
}

var ErrInvalidToken = errors.New("invalid token")

// Verify checks the signature and expiry of rawToken.
func (i *Issuer) Verify(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithIssuer(i.issuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims from token")
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	company, _ := claims["company"].(float64)
	jti, _ := claims["jti"].(string)
	exp, _ := claims.GetExpirationTime()

	roles := utils.ClaimStrings(claims["roles"])

	ac := &AccessClaims{
		UserID:    sub,
		Username:  username,
		CompanyID: int64(company),
		Roles:     roles,
		JTI:       jti,
	}
	if exp != nil {
		ac.ExpiresAt = exp.Time
	}
	return ac, nil
}
