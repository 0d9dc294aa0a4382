package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTypeKey discriminates refresh tokens from access tokens. Both are
// valid signed JWTs; the discriminator is checked on refresh decode so one
// kind cannot stand in for the other.
const refreshTypeKey = "refresh"

// AccessClaims is the payload of an access token:
// {"id": "<uuid>", "user_name": "<string>", "exp": <unix-seconds>}.
type AccessClaims struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token; type_key is always
// "refresh".
type RefreshClaims struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
	TypeKey  string `json:"type_key"`
	jwt.RegisteredClaims
}

// TokenService builds and parses both token kinds with a single shared HS256
// secret. Access and refresh lifetimes are independent; the refresh lifetime
// must exceed the access lifetime for the refresh flow to be meaningful.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source; test hook.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrSigning)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	svc := &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access-token lifetime. Session entries
// expire with it.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// EncodeAccess signs an access token for the user and returns it with its
// absolute expiry.
func (s *TokenService) EncodeAccess(userID uuid.UUID, username string) (string, time.Time, error) {
	exp := s.now().Add(s.accessTTL)
	claims := AccessClaims{
		ID:       userID.String(),
		UserName: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// EncodeRefresh signs a refresh token for the user and returns it with its
// absolute expiry.
func (s *TokenService) EncodeRefresh(userID uuid.UUID, username string) (string, time.Time, error) {
	exp := s.now().Add(s.refreshTTL)
	claims := RefreshClaims{
		ID:       userID.String(),
		UserName: username,
		TypeKey:  refreshTypeKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// DecodeAccess verifies signature and expiry and returns the access claims.
func (s *TokenService) DecodeAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(token, &claims); err != nil {
		return AccessClaims{}, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// DecodeRefresh verifies signature, expiry, and the refresh discriminator.
func (s *TokenService) DecodeRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(token, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if strings.TrimSpace(claims.ID) == "" || claims.TypeKey != refreshTypeKey {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
