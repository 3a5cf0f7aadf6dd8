package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/healthbot/healthbot/internal/auth"
	"github.com/healthbot/healthbot/internal/store"
)

// UserStore is the credential store used by AuthService.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	log    *zap.Logger
}

func NewAuthService(users UserStore, tokens TokenIssuer, log *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (int64, error) {
	if username == "" || password == "" {
		return 0, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return 0, fmt.Errorf("%w: password is too long", ErrInvalidInput)
		}
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := s.users.CreateUser(ctx, username, hash)
	if err != nil {
		return 0, err
	}
	s.log.Info("user registered", zap.String("username", username), zap.Int64("user_id", id))
	return id, nil
}

// Login verifies the credentials and returns a fresh session token. Unknown
// users and wrong passwords fail the same way.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		s.log.Warn("invalid username or password", zap.String("username", username))
		return "", ErrAuthenticationFailure
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// ResolveIdentity turns an Authorization header into an Identity. The guest
// sentinel is recognised before any token verification happens.
func (s *AuthService) ResolveIdentity(ctx context.Context, authorization string) (Identity, error) {
	token, ok := bearerToken(authorization)
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}
	if token == GuestToken {
		return GuestIdentity(), nil
	}

	username, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return Identity{}, ErrUserNotFound
	}
	return RegisteredIdentity(user.ID, user.Username), nil
}

func bearerToken(authorization string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
