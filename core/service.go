package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// LoginResult is returned to the client on a successful login.
type LoginResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// AuthService checks credentials against the user store and issues tokens.
type AuthService struct {
	users   UserStore
	tokens  TokenAuthenticator
	metrics *MetricsService
	now     func() time.Time
}

func NewAuthService(users UserStore, tokens TokenAuthenticator, metrics *MetricsService) *AuthService {
	return &AuthService{users: users, tokens: tokens, metrics: metrics, now: time.Now}
}

// Login verifies username/password, records last_login and returns the user
// with its level name plus a bearer token. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordLogin(ctx, false)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		s.recordLogin(ctx, false)
		return nil, ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(*u)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("update last_login: %w", err)
	}
	levelName, err := s.users.LevelName(ctx, u.LevelID)
	if err != nil {
		return nil, err
	}
	u.LastLogin = &now
	u.LevelName = levelName

	s.recordLogin(ctx, true)
	return &LoginResult{User: *u, Token: token}, nil
}

// Logout revokes the token the principal authenticated with.
func (s *AuthService) Logout(ctx context.Context, p Principal) error {
	return s.tokens.Revoke(ctx, p)
}

func (s *AuthService) recordLogin(ctx context.Context, success bool) {
	if err := s.metrics.RecordLogin(ctx, success); err != nil {
		log.Printf("record login metric: %v", err)
	}
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
