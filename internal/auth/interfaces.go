package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-otp-auth/internal/email"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims represents the claims carried by a session token
type TokenClaims struct {
	TokenID   string    `json:"jti"`
	UserID    string    `json:"sub"` // UUID stored as string in token
	Email     string    `json:"email"`
	Type      TokenType `json:"typ"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
// VerifyToken returns ErrExpiredToken for authentic but expired tokens and
// ErrInvalidToken for everything else it rejects.
type TokenService interface {
	CreateToken(claims TokenClaims) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// RevocationStore is the deny-list of refresh tokens.
type RevocationStore interface {
	// Revoke records tokenID for ttl. It reports false if it was already revoked.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// RevokeIssuedBefore revokes every token of userID issued before cutoff.
	RevokeIssuedBefore(ctx context.Context, userID uuid.UUID, cutoff time.Time, ttl time.Duration) error
	RevokedBefore(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
}

// UserStore is the credential store the service reads and writes.
type UserStore interface {
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdateFields(ctx context.Context, id uuid.UUID, set user.Fields) error
}

// OTPEngine manages the one-time code slot of a user.
type OTPEngine interface {
	Issue(ctx context.Context, u *user.User) (string, error)
	Validate(u *user.User, code string) error
	Consume(ctx context.Context, u *user.User, also user.Fields) error
	TTL() time.Duration
}

// Notifier delivers codes and links to the user's mailbox.
type Notifier interface {
	SendOTP(ctx context.Context, m email.OTPEmail) error
	SendPasswordReset(ctx context.Context, to, token string, ttl time.Duration) error
}

// ResetTokenStore keeps single-use password reset tokens.
type ResetTokenStore interface {
	Store(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// RateLimiter is consumed by the handlers before any work is done.
type RateLimiter interface {
	Allow(ctx context.Context, purpose, ip string) error
}

// EmailCooldown spaces out mails sent to one address.
type EmailCooldown interface {
	ClaimEmailCooldown(ctx context.Context, purpose, email string) error
}
