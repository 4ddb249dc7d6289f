package core

import (
	"context"
	"errors"
	"time"
)

// Role ids as stored in user_levels.
const (
	RoleAdmin int64 = 1
	RoleUser  int64 = 2
)

// Principal is the authenticated caller carried by a bearer token.
type Principal struct {
	ID        int64
	LevelID   int64
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.LevelID == RoleAdmin
}

// CanAccess reports whether the principal may act on the user with the given id.
func (p Principal) CanAccess(userID int64) bool {
	return p.IsAdmin() || p.ID == userID
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by the store when no row matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for tokens that were logged out.
	ErrTokenRevoked = errors.New("token revoked")
)

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the principal from context (if any).
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
