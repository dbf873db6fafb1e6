// Package auth validates the bearer tokens that identify users. Tokens are
// issued by the identity collaborator; GenerateToken exists for local
// development and tests.
package auth

import (
	"context"
	"time"
)

// JWTService defines operations on JWT access tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for userID valid for lifetime.
	GenerateToken(ctx context.Context, userID int64, lifetime time.Duration) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrInvalidSubject or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims holds the validated content of an access token.
type Claims struct {
	// UserID is parsed from the sub claim.
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
