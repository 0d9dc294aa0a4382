package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backoffice.id/internal/rbac"
	"backoffice.id/internal/session"
)

// UserDirectory is the relational lookup the authentication flow composes
// with. Both methods exclude soft-deleted users.
type UserDirectory interface {
	GetUserByUsername(ctx context.Context, username string) (rbac.User, rbac.UserProfile, error)
	GetUser(ctx context.Context, id uuid.UUID, includeDeleted bool) (rbac.User, rbac.UserProfile, error)
}

// TokenPair carries both freshly minted tokens with their absolute expiries.
type TokenPair struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"exp"`
	RefreshExpiresAt time.Time `json:"exp_refresh_token"`
}

// Service orchestrates login, refresh, and logout over two deliberately
// separate validation paths: stateless JWT decoding (refresh) and stateful
// session lookup (access). Merging them would change revocation semantics.
type Service struct {
	tokens   *TokenService
	sessions session.Store
	users    UserDirectory
}

// NewService constructs the authentication flow.
func NewService(tokens *TokenService, sessions session.Store, users UserDirectory) (*Service, error) {
	if tokens == nil || sessions == nil || users == nil {
		return nil, errors.New("auth: tokens, sessions, and user directory are required")
	}
	return &Service{tokens: tokens, sessions: sessions, users: users}, nil
}

// Login verifies credentials, mints an access/refresh pair, and writes the
// session entry keyed by the new access token. The session TTL equals the
// access-token lifetime; the cache write happens after the relational read
// and is not part of its atomicity boundary.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, rbac.User, error) {
	user, _, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, rbac.ErrNotFound) {
		return TokenPair{}, rbac.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, rbac.User{}, fmt.Errorf("auth: login: lookup user: %w", err)
	}
	ok, err := VerifyPassword(password, user.Password)
	if err != nil || !ok {
		return TokenPair{}, rbac.User{}, ErrInvalidCredentials
	}
	pair, err := s.mint(ctx, user)
	if err != nil {
		return TokenPair{}, rbac.User{}, err
	}
	return pair, user, nil
}

// Refresh validates the refresh token by signature and expiry alone (no
// session lookup), reloads the user, and mints a new pair. The old session
// entry, if any, is left to expire on its own.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, rbac.User, error) {
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, rbac.User{}, ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.ID)
	if err != nil {
		return TokenPair{}, rbac.User{}, ErrUnauthorized
	}
	user, _, err := s.users.GetUser(ctx, userID, false)
	if errors.Is(err, rbac.ErrNotFound) {
		return TokenPair{}, rbac.User{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, rbac.User{}, fmt.Errorf("auth: refresh: lookup user: %w", err)
	}
	pair, err := s.mint(ctx, user)
	if err != nil {
		return TokenPair{}, rbac.User{}, err
	}
	return pair, user, nil
}

// Logout resolves the session behind the access token and removes it. A
// second logout with the same token fails with ErrUnauthorized.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	user, err := s.ResolveUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUnauthorized
	}
	removed, err := s.sessions.Remove(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("auth: logout: remove session: %w", err)
	}
	if !removed {
		return ErrUnauthorized
	}
	return nil
}

// ResolveUser maps a live access token to its user via the session store.
// A miss at any step — no session, unparsable user id, user gone or
// soft-deleted — yields (nil, nil): unauthenticated, not an error.
func (s *Service) ResolveUser(ctx context.Context, accessToken string) (*rbac.User, error) {
	if accessToken == "" {
		return nil, nil
	}
	data, ok, err := s.sessions.Get(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve: session lookup: %w", err)
	}
	if !ok {
		return nil, nil
	}
	userID, err := uuid.Parse(data.UserID)
	if err != nil {
		return nil, nil
	}
	user, _, err := s.users.GetUser(ctx, userID, false)
	if errors.Is(err, rbac.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: resolve: lookup user: %w", err)
	}
	return &user, nil
}

func (s *Service) mint(ctx context.Context, user rbac.User) (TokenPair, error) {
	access, accessExp, err := s.tokens.EncodeAccess(user.ID, user.UserName)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.EncodeRefresh(user.ID, user.UserName)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: mint refresh token: %w", err)
	}
	entry := session.Data{UserID: user.ID.String(), RefreshToken: refresh}
	if err := s.sessions.Put(ctx, access, entry, s.tokens.AccessTTL()); err != nil {
		return TokenPair{}, fmt.Errorf("auth: write session: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
