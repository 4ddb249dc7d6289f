package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenAuthenticator issues and verifies bearer tokens.
type TokenAuthenticator interface {
	Issue(u User) (string, Principal, error)
	Authenticate(ctx context.Context, token string) (Principal, error)
	Revoke(ctx context.Context, p Principal) error
}

type tokenClaims struct {
	UserID   int64  `json:"id"`
	LevelID  int64  `json:"level_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuthenticator signs HS256 tokens. Revocation is delegated to an
// optional denylist; without one, Revoke is a no-op.
type JWTAuthenticator struct {
	secret   []byte
	ttl      time.Duration
	denylist TokenDenylist
	now      func() time.Time
}

func NewJWTAuthenticator(secret string, ttl time.Duration, denylist TokenDenylist) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:   []byte(secret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}
}

func (a *JWTAuthenticator) Issue(u User) (string, Principal, error) {
	now := a.now()
	p := Principal{
		ID:        u.ID,
		LevelID:   u.LevelID,
		Username:  u.Username,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(a.ttl),
	}
	claims := tokenClaims{
		UserID:   p.ID,
		LevelID:  p.LevelID,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			ID:        p.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", Principal{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, p, nil
}

// Authenticate validates signature, expiry and revocation and returns the principal.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims := &tokenClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tok.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 || claims.LevelID <= 0 || claims.ID == "" || claims.ExpiresAt == nil {
		return Principal{}, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}

	if a.denylist != nil {
		revoked, err := a.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Principal{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Principal{}, ErrTokenRevoked
		}
	}

	return Principal{
		ID:        claims.UserID,
		LevelID:   claims.LevelID,
		Username:  claims.Username,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (a *JWTAuthenticator) Revoke(ctx context.Context, p Principal) error {
	if a.denylist == nil {
		return nil
	}
	if p.TokenID == "" {
		return errors.New("token has no id")
	}
	return a.denylist.Revoke(ctx, p.TokenID, p.ExpiresAt)
}
